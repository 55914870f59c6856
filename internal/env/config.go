package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Variant is a path to a TOML variant definition. Empty means the
	// embedded standard map.
	Variant string `env:"PARLEY_VARIANT"`

	DebugHTTP bool `env:"PARLEY_DEBUG_HTTP"`

	// DeadlineSeconds is the movement-phase deadline. Zero means phases
	// wait for every power to be ready.
	DeadlineSeconds int `env:"PARLEY_DEADLINE_SECONDS"`

	// PressLevel is the advertised press level. Zero means no press.
	PressLevel int `env:"PARLEY_PRESS_LEVEL"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
