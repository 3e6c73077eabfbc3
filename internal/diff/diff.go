package diff

import (
	"strings"
)

// Diff is one detected difference between a local declaration and the
// observed remote resource.
type Diff interface {
	// Kind returns the change kind within the diff's vocabulary.
	Kind() ChangeKind

	// Render returns a human-readable description. It panics with
	// *UnhandledKindError for a kind the vocabulary has no case for.
	Render() string

	// IsUnmanaged is true when the resource only exists remotely.
	IsUnmanaged() bool

	// IsAdded is true when the resource only exists locally.
	IsAdded() bool
}

// Change carries the fields every Diff has. Vocabulary-specific diff types
// embed it and add their own payload and Render method.
//
// Remote is the zero value when the change is an addition; Local is the zero
// value when the resource is unmanaged.
type Change[R, L any] struct {
	vocab *Vocabulary
	kind  ChangeKind

	Remote R
	Local  L
}

// NewChange creates a change of kind k. It panics if k is not declared by vocab.
func NewChange[R, L any](vocab *Vocabulary, k ChangeKind, remote R, local L) Change[R, L] {
	if !vocab.Has(k) {
		panic(vocab.Unhandled(k))
	}
	return Change[R, L]{vocab: vocab, kind: k, Remote: remote, Local: local}
}

// Kind returns the change kind.
func (c Change[R, L]) Kind() ChangeKind {
	return c.kind
}

// Vocabulary returns the vocabulary the change kind belongs to.
func (c Change[R, L]) Vocabulary() *Vocabulary {
	return c.vocab
}

// IsUnmanaged reports whether this is the vocabulary's unmanaged kind.
func (c Change[R, L]) IsUnmanaged() bool {
	return c.vocab != nil && c.kind == c.vocab.Unmanaged
}

// IsAdded reports whether this is the vocabulary's added kind.
func (c Change[R, L]) IsAdded() bool {
	return c.vocab != nil && c.kind == c.vocab.Added
}

// Unhandled is a shorthand for c.Vocabulary().Unhandled(c.Kind()).
func (c Change[R, L]) Unhandled() *UnhandledKindError {
	return c.vocab.Unhandled(c.kind)
}

// Indent prefixes every line of s with prefix.
func Indent(s, prefix string) string {
	if s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// RenderAll renders diffs one per line.
func RenderAll(diffs []Diff) string {
	parts := make([]string, 0, len(diffs))
	for _, d := range diffs {
		parts = append(parts, d.Render())
	}
	return strings.Join(parts, "\n")
}

// Only reports whether diffs consists of exactly one diff satisfying pred.
func Only(diffs []Diff, pred func(Diff) bool) bool {
	return len(diffs) == 1 && pred(diffs[0])
}

// Unmanaged is a predicate for Only.
func Unmanaged(d Diff) bool { return d.IsUnmanaged() }

// Added is a predicate for Only.
func Added(d Diff) bool { return d.IsAdded() }

// ReportOnly is a predicate for diffs that can be detected but not applied,
// such as a field the remote API treats as immutable. A diff opts in by
// implementing ReportOnly() bool.
func ReportOnly(d Diff) bool {
	r, ok := d.(interface{ ReportOnly() bool })
	return ok && r.ReportOnly()
}

// Split partitions diffs by pred, preserving order.
func Split(diffs []Diff, pred func(Diff) bool) (match, rest []Diff) {
	for _, d := range diffs {
		if pred(d) {
			match = append(match, d)
		} else {
			rest = append(rest, d)
		}
	}
	return match, rest
}
