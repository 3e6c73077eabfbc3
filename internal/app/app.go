package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cloudsync/internal/config"
	"github.com/dokzlo13/cloudsync/internal/ledger"
	"github.com/dokzlo13/cloudsync/internal/reconcile"
	"github.com/dokzlo13/cloudsync/internal/status"
)

// App is the main application container. Every command builds one, uses it
// for a single invocation and closes it.
type App struct {
	cfg      *config.Config
	services *Services
}

// New creates a new App with all services initialized. A nil agg gets a
// fresh aggregator.
func New(ctx context.Context, cfg *config.Config, out io.Writer, agg *status.Aggregator) (*App, error) {
	services, err := NewServices(cfg, out, agg)
	if err != nil {
		return nil, err
	}
	if err := services.Start(ctx); err != nil {
		services.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Runner returns the runner for kind.
func (a *App) Runner(kind string) (reconcile.Runner, error) {
	i := slices.IndexFunc(a.services.Runners, func(r reconcile.Runner) bool { return r.Kind() == kind })
	if i < 0 {
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	return a.services.Runners[i], nil
}

// Ledger returns the sync ledger.
func (a *App) Ledger() *ledger.Ledger {
	return a.services.Ledger
}

// Printer returns the diff printer.
func (a *App) Printer() *reconcile.Printer {
	return a.services.Printer
}

// Watch diffs every kind periodically until ctx is cancelled. SIGHUP
// triggers an immediate pass.
func (a *App) Watch(ctx context.Context) error {
	w := reconcile.NewWatcher(a.cfg.Reconciler.WatchInterval.Duration(), a.services.Runners...)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info().Msg("Received SIGHUP, checking for drift")
				w.Trigger()
			}
		}
	}()

	return w.Run(ctx)
}

// Close releases all resources.
func (a *App) Close() {
	if a.services != nil {
		a.services.Close()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
