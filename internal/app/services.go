package app

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/cloudsync/internal/cloud"
	"github.com/dokzlo13/cloudsync/internal/config"
	"github.com/dokzlo13/cloudsync/internal/db"
	"github.com/dokzlo13/cloudsync/internal/ledger"
	"github.com/dokzlo13/cloudsync/internal/loader"
	"github.com/dokzlo13/cloudsync/internal/policy"
	"github.com/dokzlo13/cloudsync/internal/reconcile"
	"github.com/dokzlo13/cloudsync/internal/resources"
	"github.com/dokzlo13/cloudsync/internal/status"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Sandbox *db.DB
	Ledger  *ledger.Ledger
	Run     *ledger.Run

	// Provider and declarations
	Client *cloud.Client
	Files  *loader.Loader

	// Reconciliation
	Status  *status.Aggregator
	Policy  *policy.Guard
	Printer *reconcile.Printer
	Runners []reconcile.Runner
}

// NewServices creates all services with proper dependency injection.
// Diffs are printed to out and outcomes folded into agg.
func NewServices(cfg *config.Config, out io.Writer, agg *status.Aggregator) (*Services, error) {
	if agg == nil {
		agg = status.New()
	}
	s := &Services{cfg: cfg, Status: agg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger; every invocation is one run
	s.Ledger = ledger.New(database.DB)
	s.Run = s.Ledger.StartRun()

	// Initialize sandbox provider
	s.Sandbox, err = db.Open(cfg.Provider.SandboxPath)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Client = cloud.NewClient(s.Sandbox.DB)
	s.Files = loader.New(cfg.Resources.Dir)

	opts := reconcile.Options{
		Limiter: newLimiter(cfg.Reconciler.RateLimitRPS),
		Journal: s.Run,
	}

	// Policy script is optional
	if cfg.Policy.Script != "" {
		s.Policy, err = policy.Load(cfg.Policy.Script)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts.Guard = s.Policy
	}

	s.Printer = reconcile.NewPrinter(out, cfg.Output.Colors)
	opts.Printer = s.Printer

	s.Runners = resources.Runners(s.Client, s.Files, s.Status, opts)

	log.Debug().
		Str("run_id", s.Run.ID()).
		Str("resources", cfg.Resources.Dir).
		Str("sandbox", cfg.Provider.SandboxPath).
		Msg("Services initialized")

	return s, nil
}

// newLimiter returns nil (unlimited) for a non-positive rate.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Start performs startup housekeeping.
func (s *Services) Start(ctx context.Context) error {
	retention := s.cfg.Ledger.Retention()
	if retention <= 0 {
		return nil
	}
	n, err := s.Ledger.DeleteOlderThan(ctx, retention)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int64("entries", n).Dur("retention", retention).Msg("Pruned sync ledger")
	}
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Policy != nil {
		s.Policy.Close()
	}
	if s.Sandbox != nil {
		s.Sandbox.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
