package env

import (
	zap "go.uber.org/zap"
)

// MakeLogger builds the process-wide logger. JSON to stderr; the clause
// parsers running in Warn mode log through a global installed from this.
func MakeLogger() (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logConfig.Encoding = "json"
	logConfig.InitialFields = map[string]interface{}{"app": "parley"}

	return logConfig.Build()
}
