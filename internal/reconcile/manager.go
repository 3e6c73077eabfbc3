package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/cloudsync/internal/diff"
	"github.com/dokzlo13/cloudsync/internal/status"
)

// Options configures a Manager. Every field is optional.
type Options struct {
	Limiter *rate.Limiter // throttles remote calls
	Guard   Guard
	Journal Journal
	Printer *Printer
}

// Manager joins local and remote resources by name and drives create and
// update calls through its adapter. It is domain-agnostic; all resource
// specific logic lives in the adapter.
type Manager[L, R any] struct {
	adapter Adapter[L, R]
	status  *status.Aggregator
	limiter *rate.Limiter
	guard   Guard
	journal Journal
	printer *Printer
}

// NewManager creates a manager for one resource kind.
func NewManager[L, R any](adapter Adapter[L, R], agg *status.Aggregator, opts Options) *Manager[L, R] {
	if agg == nil {
		agg = status.New()
	}
	return &Manager[L, R]{
		adapter: adapter,
		status:  agg,
		limiter: opts.Limiter,
		guard:   opts.Guard,
		journal: opts.Journal,
		printer: opts.Printer,
	}
}

// Kind returns the adapter's resource kind.
func (m *Manager[L, R]) Kind() string {
	return m.adapter.Kind()
}

// snapshot is one pass's view of both sides. It is never refreshed during
// the pass, so mutations made while syncing one resource don't affect another.
type snapshot[L, R any] struct {
	local  map[string]L
	remote map[string]R
}

func (m *Manager[L, R]) fetch(ctx context.Context) (*snapshot[L, R], error) {
	local, err := m.adapter.LocalResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load local %s resources: %w", m.Kind(), err)
	}

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	remote, err := m.adapter.RemoteResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote %s resources: %w", m.Kind(), err)
	}

	log.Debug().
		Str("kind", m.Kind()).
		Int("local", len(local)).
		Int("remote", len(remote)).
		Msg("Fetched resources")

	return &snapshot[L, R]{local: local, remote: remote}, nil
}

// diffAll classifies every name in the snapshot. In-sync names are omitted.
func (m *Manager[L, R]) diffAll(s *snapshot[L, R]) map[string][]diff.Diff {
	out := make(map[string][]diff.Diff)

	for name, r := range s.remote {
		if _, ok := s.local[name]; !ok {
			out[name] = []diff.Diff{m.adapter.UnmanagedDiff(r)}
		}
	}

	for name, l := range s.local {
		if diffs := m.diffOne(s, name, l); len(diffs) > 0 {
			out[name] = diffs
		}
	}

	return out
}

func (m *Manager[L, R]) diffOne(s *snapshot[L, R], name string, l L) []diff.Diff {
	r, ok := s.remote[name]
	if !ok {
		return []diff.Diff{m.adapter.AddedDiff(l)}
	}
	return m.adapter.DiffResource(l, r)
}

// DiffAll returns the differences for every resource, keyed by name.
// Resources that are in sync have no entry.
func (m *Manager[L, R]) DiffAll(ctx context.Context) (map[string][]diff.Diff, error) {
	s, err := m.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return m.diffAll(s), nil
}

// Diff returns the differences for one declared resource. Remote resources
// that were not requested are not reported.
func (m *Manager[L, R]) Diff(ctx context.Context, name string) ([]diff.Diff, error) {
	s, err := m.fetch(ctx)
	if err != nil {
		return nil, err
	}
	l, ok := s.local[name]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", m.Kind(), name, ErrNotDeclared)
	}
	return m.diffOne(s, name, l), nil
}

// SyncAll corrects every drifted resource. It stops at the first failure and
// leaves changes already applied to other resources in place.
func (m *Manager[L, R]) SyncAll(ctx context.Context) error {
	s, err := m.fetch(ctx)
	if err != nil {
		return err
	}

	all := m.diffAll(s)
	log.Info().Str("kind", m.Kind()).Int("drifted", len(all)).Msg("Sync plan")

	for _, name := range diff.SortedKeys(all) {
		if err := m.syncOne(ctx, s, name, all[name]); err != nil {
			return err
		}
	}
	return nil
}

// Sync corrects one declared resource.
func (m *Manager[L, R]) Sync(ctx context.Context, name string) error {
	s, err := m.fetch(ctx)
	if err != nil {
		return err
	}
	l, ok := s.local[name]
	if !ok {
		return fmt.Errorf("%s %q: %w", m.Kind(), name, ErrNotDeclared)
	}

	diffs := m.diffOne(s, name, l)
	if len(diffs) == 0 {
		log.Info().Str("kind", m.Kind()).Str("name", name).Msg("Resource in sync")
		return nil
	}
	return m.syncOne(ctx, s, name, diffs)
}

func (m *Manager[L, R]) syncOne(ctx context.Context, s *snapshot[L, R], name string, diffs []diff.Diff) error {
	m.printer.Resource(name, diffs)

	// Never act on a resource we don't own.
	if diff.Only(diffs, diff.Unmanaged) {
		m.status.Record(status.DiffsFound)
		m.record(ctx, name, ActionUnmanaged, diffs, nil)
		return nil
	}

	local := s.local[name]

	if m.guard != nil {
		allowed, err := m.guard.Allow(ctx, m.Kind(), name, diffs)
		if err != nil {
			m.record(ctx, name, ActionFailed, diffs, err)
			return fmt.Errorf("sync guard failed for %s %q: %w", m.Kind(), name, err)
		}
		if !allowed {
			log.Warn().Str("kind", m.Kind()).Str("name", name).Msg("Sync vetoed by policy")
			m.status.Record(status.DiffsFound)
			m.record(ctx, name, ActionVetoed, diffs, nil)
			return nil
		}
	}

	// Some changes can only be reported; they stay drifted after the pass.
	reported, diffs := diff.Split(diffs, diff.ReportOnly)
	if len(reported) > 0 {
		log.Warn().Str("kind", m.Kind()).Str("name", name).Int("changes", len(reported)).Msg("Changes cannot be applied")
		m.status.Record(status.DiffsFound)
		m.record(ctx, name, ActionReported, reported, nil)
	}
	if len(diffs) == 0 {
		return nil
	}

	action := ActionUpdated
	if diff.Only(diffs, diff.Added) {
		action = ActionCreated
		if err := m.wait(ctx); err != nil {
			return err
		}
		log.Info().Str("kind", m.Kind()).Str("name", name).Msg("Creating resource")
		if _, err := m.adapter.Create(ctx, local); err != nil {
			m.record(ctx, name, ActionFailed, diffs, err)
			return fmt.Errorf("failed to create %s %q: %w", m.Kind(), name, err)
		}
	}

	if err := m.wait(ctx); err != nil {
		return err
	}
	log.Info().Str("kind", m.Kind()).Str("name", name).Int("changes", len(diffs)).Msg("Updating resource")
	if err := m.adapter.Update(ctx, local, diffs); err != nil {
		m.record(ctx, name, ActionFailed, diffs, err)
		return fmt.Errorf("failed to update %s %q: %w", m.Kind(), name, err)
	}

	m.status.Record(status.DiffsSynced)
	m.record(ctx, name, action, diffs, nil)
	return nil
}

// RunDiff prints differences for one resource, or all when name is empty,
// and records DiffsFound if there are any. It never mutates remote state.
func (m *Manager[L, R]) RunDiff(ctx context.Context, name string) error {
	var all map[string][]diff.Diff
	if name == "" {
		var err error
		if all, err = m.DiffAll(ctx); err != nil {
			return err
		}
	} else {
		diffs, err := m.Diff(ctx, name)
		if err != nil {
			return err
		}
		all = make(map[string][]diff.Diff, 1)
		if len(diffs) > 0 {
			all[name] = diffs
		}
	}

	for _, n := range diff.SortedKeys(all) {
		m.printer.Resource(n, all[n])
	}

	if len(all) == 0 {
		log.Info().Str("kind", m.Kind()).Str("name", name).Msg("No differences found")
		return nil
	}
	m.status.Record(status.DiffsFound)
	return nil
}

// RunSync syncs one resource, or all when name is empty.
func (m *Manager[L, R]) RunSync(ctx context.Context, name string) error {
	if name == "" {
		return m.SyncAll(ctx)
	}
	return m.Sync(ctx, name)
}

func (m *Manager[L, R]) wait(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Wait(ctx)
}

func (m *Manager[L, R]) record(ctx context.Context, name string, action Action, diffs []diff.Diff, cause error) {
	if m.journal == nil {
		return
	}
	ev := Event{Kind: m.Kind(), Name: name, Action: action, Diffs: diffs, Err: cause}
	if err := m.journal.Record(ctx, ev); err != nil {
		log.Warn().Err(err).Str("kind", m.Kind()).Str("name", name).Msg("Failed to record sync event")
	}
}
