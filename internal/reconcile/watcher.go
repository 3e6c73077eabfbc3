package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Watcher periodically diffs every registered kind and reports drift.
// It only ever calls RunDiff, so it never mutates remote state.
type Watcher struct {
	runners  []Runner
	interval time.Duration
	trigger  chan struct{}
}

// NewWatcher creates a watcher over runners.
func NewWatcher(interval time.Duration, runners ...Runner) *Watcher {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	return &Watcher{
		runners:  runners,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate pass.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Run diffs once immediately, then on every tick or trigger until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	log.Info().Dur("interval", w.interval).Int("kinds", len(w.runners)).Msg("Watcher started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.checkAll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Watcher stopping")
			return nil
		case <-w.trigger:
			w.checkAll(ctx)
		case <-ticker.C:
			w.checkAll(ctx)
		}
	}
}

func (w *Watcher) checkAll(ctx context.Context) {
	log.Debug().Msg("Drift check started")
	for _, r := range w.runners {
		if ctx.Err() != nil {
			return
		}
		if err := r.RunDiff(ctx, ""); err != nil {
			log.Error().Err(err).Str("kind", r.Kind()).Msg("Drift check failed")
		}
	}
	log.Debug().Msg("Drift check completed")
}
