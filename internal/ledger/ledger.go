// Package ledger provides an append-only history of what reconciliation
// passes did, for auditing.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dokzlo13/cloudsync/internal/reconcile"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	RunID     string
	Timestamp time.Time
	Kind      string
	Name      string
	Action    reconcile.Action
	Changes   []string // rendered diffs
	Error     string
}

// Ledger provides append-only sync event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Run is the journal of one reconciliation pass. Every entry it writes
// carries the same run ID.
type Run struct {
	ledger *Ledger
	id     string
}

// StartRun begins a new run with a fresh ID.
func (l *Ledger) StartRun() *Run {
	return &Run{ledger: l, id: uuid.NewString()}
}

// ID returns the run ID.
func (r *Run) ID() string {
	return r.id
}

// Record implements reconcile.Journal.
func (r *Run) Record(ctx context.Context, ev reconcile.Event) error {
	changes := make([]string, 0, len(ev.Diffs))
	for _, d := range ev.Diffs {
		changes = append(changes, d.Render())
	}
	var errText string
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	return r.ledger.Append(ctx, Entry{
		RunID:   r.id,
		Kind:    ev.Kind,
		Name:    ev.Name,
		Action:  ev.Action,
		Changes: changes,
		Error:   errText,
	})
}

// Append adds a new entry to the ledger. Timestamp defaults to now.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	changesJSON, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO sync_ledger (run_id, timestamp, kind, name, action, changes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, ts.UTC().Unix(), e.Kind, e.Name, string(e.Action), string(changesJSON), e.Error)

	return err
}

// Recent returns the newest entries first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, timestamp, kind, name, action, changes, error
		FROM sync_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByResource returns the newest entries for one resource first
func (l *Ledger) ByResource(ctx context.Context, kind, name string, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, timestamp, kind, name, action, changes, error
		FROM sync_ledger
		WHERE kind = ? AND name = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, kind, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).Unix()
	result, err := l.db.ExecContext(ctx, `
		DELETE FROM sync_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var changes, errText sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.RunID, &timestamp, &entry.Kind, &entry.Name, &entry.Action, &changes, &errText,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if errText.Valid {
			entry.Error = errText.String
		}
		if changes.Valid && changes.String != "" {
			if err := json.Unmarshal([]byte(changes.String), &entry.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
