// Package diff provides the typed difference model shared by every resource kind:
// change-kind vocabularies, the Diff contract, and keyed collection differencing.
package diff

import (
	"fmt"
	"sync"
)

// ChangeKind identifies one kind of change within a Vocabulary.
type ChangeKind int

// Allocator hands out change kinds. Each value returned is strictly greater
// than every value it returned before.
type Allocator struct {
	mu   sync.Mutex
	next ChangeKind
}

// NewAllocator creates an allocator whose first kind is seed.
func NewAllocator(seed ChangeKind) *Allocator {
	return &Allocator{next: seed}
}

// Next returns the next unused change kind.
func (a *Allocator) Next() ChangeKind {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := a.next
	a.next++
	return k
}

// Vocabulary is the closed set of change kinds meaningful for one resource
// type or sub-structure. Every vocabulary declares Unmanaged and Added.
type Vocabulary struct {
	name string
	ids  *Allocator

	mu     sync.RWMutex
	labels map[ChangeKind]string
	order  []ChangeKind

	Unmanaged ChangeKind
	Added     ChangeKind
}

// NewVocabulary creates a vocabulary drawing its kinds from ids. Vocabularies
// that may nest inside one another should share an allocator so their kinds
// never collide.
func NewVocabulary(name string, ids *Allocator) *Vocabulary {
	v := &Vocabulary{
		name:   name,
		ids:    ids,
		labels: make(map[ChangeKind]string),
	}
	v.Unmanaged = v.Declare("unmanaged")
	v.Added = v.Declare("added")
	return v
}

// Name returns the vocabulary name.
func (v *Vocabulary) Name() string {
	return v.name
}

// Declare adds a new kind to the vocabulary. Intended to be called while
// package-level vocabularies are initialized, never per request.
func (v *Vocabulary) Declare(label string) ChangeKind {
	k := v.ids.Next()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.labels[k] = label
	v.order = append(v.order, k)
	return k
}

// Has reports whether k was declared by this vocabulary.
func (v *Vocabulary) Has(k ChangeKind) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	_, ok := v.labels[k]
	return ok
}

// Label returns the label k was declared with, or "kind(<n>)" if unknown.
func (v *Vocabulary) Label(k ChangeKind) string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if l, ok := v.labels[k]; ok {
		return l
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kinds returns every declared kind in declaration order.
func (v *Vocabulary) Kinds() []ChangeKind {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]ChangeKind, len(v.order))
	copy(out, v.order)
	return out
}

// Unhandled builds the error a renderer panics with when it meets a kind it
// has no case for.
func (v *Vocabulary) Unhandled(k ChangeKind) *UnhandledKindError {
	return &UnhandledKindError{Vocabulary: v.name, Kind: k, Label: v.Label(k)}
}

// UnhandledKindError reports a change kind with no rendering or apply case.
// This is always a programming error in a vocabulary definition.
type UnhandledKindError struct {
	Vocabulary string
	Kind       ChangeKind
	Label      string
}

func (e *UnhandledKindError) Error() string {
	return fmt.Sprintf("diff: vocabulary %q has no case for change kind %s (%d)", e.Vocabulary, e.Label, int(e.Kind))
}
