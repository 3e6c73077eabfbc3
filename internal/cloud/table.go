package cloud

import (
	"context"
	"encoding/json"
	"fmt"
)

// Table wraps Store with JSON marshaling for one resource kind.
type Table[T any] struct {
	store *Store
	kind  string
}

// NewTable creates a typed table for the given kind.
func NewTable[T any](store *Store, kind string) *Table[T] {
	return &Table[T]{
		store: store,
		kind:  kind,
	}
}

// Create marshals and stores a new resource.
func (t *Table[T]) Create(ctx context.Context, id string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", t.kind, err)
	}

	if err := t.store.Insert(ctx, t.kind, id, payload); err != nil {
		return fmt.Errorf("%s %q: %w", t.kind, id, err)
	}
	return nil
}

// Update applies modify to the current value and stores the result.
// Nothing is written if modify returns an error.
func (t *Table[T]) Update(ctx context.Context, id string, modify func(current *T) error) error {
	payload, version, err := t.store.Get(ctx, t.kind, id)
	if err != nil {
		return fmt.Errorf("%s %q: %w", t.kind, id, err)
	}

	var current T
	if err := json.Unmarshal(payload, &current); err != nil {
		return fmt.Errorf("failed to unmarshal %s %q: %w", t.kind, id, err)
	}

	if err := modify(&current); err != nil {
		return fmt.Errorf("%s %q: %w", t.kind, id, err)
	}

	updated, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", t.kind, err)
	}

	if err := t.store.Replace(ctx, t.kind, id, version, updated); err != nil {
		return fmt.Errorf("%s %q: %w", t.kind, id, err)
	}
	return nil
}

// List retrieves every resource of this kind keyed by id.
func (t *Table[T]) List(ctx context.Context) (map[string]T, error) {
	payloads, err := t.store.List(ctx, t.kind)
	if err != nil {
		return nil, err
	}

	values := make(map[string]T, len(payloads))
	for id, payload := range payloads {
		var value T
		if err := json.Unmarshal(payload, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s %q: %w", t.kind, id, err)
		}
		values[id] = value
	}

	return values, nil
}
