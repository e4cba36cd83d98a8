package player

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RolloverWorker periodically moves loaded players onto the new day so idle
// players do not keep yesterday's engines and records around.
type RolloverWorker struct {
	reg      *Registry
	interval time.Duration
	log      zerolog.Logger
}

func NewRolloverWorker(reg *Registry, interval time.Duration, logger zerolog.Logger) *RolloverWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RolloverWorker{reg: reg, interval: interval, log: logger}
}

// Run ticks until ctx is cancelled.
func (w *RolloverWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *RolloverWorker) tick(ctx context.Context) {
	if n := w.reg.Rollover(ctx); n > 0 {
		w.log.Info().Int("players", n).Str("date", w.reg.Clock().Key()).Msg("rollover: reset players for the new day")
	}
}
