package yield

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Distributor credits daily returns for active affiliated products. A run
// is keyed by (user, product, payout date) so re-running the same day is
// a no-op.
type Distributor interface {
	RunOnce(ctx context.Context, now time.Time) error
}

// Noop is the disabled distributor. Daily yield accrual is scheduled out
// of band; until the scheduler lands this keeps the wiring in place.
type Noop struct {
	logger zerolog.Logger
}

func NewNoop(logger zerolog.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) RunOnce(_ context.Context, now time.Time) error {
	n.logger.Debug().
		Time("as_of", now).
		Msg("yield distribution disabled, skipping run")
	return nil
}
