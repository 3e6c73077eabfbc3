// Package reconcile provides the reconciliation framework for making
// remote resources match their local declarations.
package reconcile

import (
	"context"
	"errors"

	"github.com/dokzlo13/cloudsync/internal/diff"
)

// ErrNotDeclared is returned when a single resource is requested by a name
// that has no local declaration.
var ErrNotDeclared = errors.New("resource not declared locally")

// Adapter is the per-kind plug-in the Manager is generic over. L is the local
// (declared) resource type and R the remote (observed) one; the Manager never
// looks inside either.
type Adapter[L, R any] interface {
	// Kind returns the resource kind name used on the command line.
	Kind() string

	// LocalResources returns the declared resources keyed by name.
	LocalResources(ctx context.Context) (map[string]L, error)

	// RemoteResources returns the observed resources keyed by name.
	RemoteResources(ctx context.Context) (map[string]R, error)

	// DiffResource compares a declared resource with its remote counterpart.
	// An empty result means the resource is in sync.
	DiffResource(local L, remote R) []diff.Diff

	// UnmanagedDiff describes a remote resource with no declaration.
	UnmanagedDiff(remote R) diff.Diff

	// AddedDiff describes a declared resource that does not exist remotely.
	AddedDiff(local L) diff.Diff

	// Create creates the remote resource. It may not be able to set every
	// field; Update is called with the added diff right after.
	Create(ctx context.Context, local L) (R, error)

	// Update applies diffs in order.
	Update(ctx context.Context, local L, diffs []diff.Diff) error
}

// Runner is the kind-erased surface drivers use. An empty name means every
// resource of the kind.
type Runner interface {
	Kind() string
	RunDiff(ctx context.Context, name string) error
	RunSync(ctx context.Context, name string) error
}

// Guard may veto syncing a resource before any remote call is issued.
type Guard interface {
	Allow(ctx context.Context, kind, name string, diffs []diff.Diff) (bool, error)
}

// Action is what a sync pass did with one resource.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnmanaged Action = "unmanaged"
	ActionVetoed    Action = "vetoed"
	ActionReported  Action = "reported"
	ActionFailed    Action = "failed"
)

// Event is the outcome of syncing one resource.
type Event struct {
	Kind   string
	Name   string
	Action Action
	Diffs  []diff.Diff
	Err    error
}

// Journal records sync outcomes.
type Journal interface {
	Record(ctx context.Context, ev Event) error
}
