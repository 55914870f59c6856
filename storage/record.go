package storage

import (
	"context"

	"go.uber.org/multierr"

	"github.com/trieste/parley/game"
)

// RecordEvent archives one game event. Phase results land under
// history.<phase>, press appends to a flat log, and lifecycle changes
// overwrite the status keys.
func RecordEvent(ctx context.Context, store Store, ev game.Event) error {
	switch ev.Kind {
	case game.PhaseProcessed:
		return multierr.Append(
			store.Record(ctx, "history."+ev.Phase, ev.Results),
			store.Record(ctx, "status.phase", ev.Phase),
		)

	case game.StatusChanged:
		err := store.Record(ctx, "status.lifecycle", ev.Status.String())

		if ev.Winner != "" {
			err = multierr.Append(err, store.Record(ctx, "status.winner", ev.Winner))
		}

		if len(ev.DrawPowers) > 0 {
			err = multierr.Append(err, store.Record(ctx, "status.draw", ev.DrawPowers))
		}

		return err

	case game.MessageReceived:
		return store.Record(ctx, "press.-1", map[string]interface{}{
			"from": ev.From,
			"to":   ev.To,
		})

	default:
		return nil
	}
}
