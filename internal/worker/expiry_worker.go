package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper finalizes attempts that ran past their deadline.
type Sweeper interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// ExpiryWorker periodically finalizes abandoned attempts so a closed browser
// still ends up with a graded result.
type ExpiryWorker struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(sweeper Sweeper, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpiryWorker{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	n, err := w.sweeper.ExpireOverdue(ctx, w.now())
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Sweep failed")
		}
		return
	}
	if n > 0 {
		w.log.Info().Int("finalized", n).Msg("Overdue attempts finalized")
	}
}
