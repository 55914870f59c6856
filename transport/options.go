package transport

import (
	"go.uber.org/zap"

	"github.com/trieste/parley/dispatch"
	"github.com/trieste/parley/game"
	"github.com/trieste/parley/session"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on
	Port int

	// Trace will dump frames to the log. This is only useful in local
	// debugging
	Trace bool

	// NumListeners is how many accept loops share the port via
	// SO_REUSEPORT. Defaults to 1.
	NumListeners int

	Dispatcher *dispatch.Dispatcher
	Registry   *session.Registry
	Model      game.Model

	Log *zap.Logger
}
