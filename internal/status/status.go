// Package status aggregates the outcome of a run into a single process exit code.
package status

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Severity is a run outcome. Its integer value is the process exit code.
type Severity int

// Exit codes consumed by shell scripts and CI. These values must not change.
const (
	OK          Severity = 0
	Exception   Severity = 1
	DiffsFound  Severity = 2
	DiffsSynced Severity = 3
)

// String returns a human-readable name for the severity.
func (s Severity) String() string {
	switch s {
	case OK:
		return "ok"
	case Exception:
		return "exception"
	case DiffsFound:
		return "diffs_found"
	case DiffsSynced:
		return "diffs_synced"
	default:
		return "unknown"
	}
}

// Code returns the process exit code for the severity.
func (s Severity) Code() int {
	return int(s)
}

// Aggregator tracks the most severe outcome of a run.
// Recording only ever escalates; once Exception is recorded it is final.
type Aggregator struct {
	mu      sync.Mutex
	current Severity
}

// New creates an aggregator at OK.
func New() *Aggregator {
	return &Aggregator{current: OK}
}

// Record folds s into the current severity.
func (a *Aggregator) Record(s Severity) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == Exception {
		return
	}
	if s == Exception || s > a.current {
		if s != a.current {
			log.Debug().Str("from", a.current.String()).Str("to", s.String()).Msg("Exit status escalated")
		}
		a.current = s
	}
}

// Current returns the current severity.
func (a *Aggregator) Current() Severity {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.current
}
