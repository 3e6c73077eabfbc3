package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dokzlo13/cloudsync/internal/db"
	"github.com/dokzlo13/cloudsync/internal/diff"
	"github.com/dokzlo13/cloudsync/internal/reconcile"
)

type textDiff string

func (d textDiff) Kind() diff.ChangeKind { return 0 }
func (d textDiff) Render() string        { return string(d) }
func (d textDiff) IsUnmanaged() bool     { return false }
func (d textDiff) IsAdded() bool         { return false }

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestRun_Record(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	run := l.StartRun()
	if run.ID() == "" {
		t.Fatal("run ID is empty")
	}

	events := []reconcile.Event{
		{Kind: "bucket", Name: "logs", Action: reconcile.ActionCreated, Diffs: []diff.Diff{textDiff("create logs")}},
		{Kind: "bucket", Name: "data", Action: reconcile.ActionFailed, Diffs: []diff.Diff{textDiff("versioning: false -> true")}, Err: errors.New("access denied")},
	}
	for _, ev := range events {
		if err := run.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}

	want := []*Entry{
		{RunID: run.ID(), Kind: "bucket", Name: "data", Action: reconcile.ActionFailed, Changes: []string{"versioning: false -> true"}, Error: "access denied"},
		{RunID: run.ID(), Kind: "bucket", Name: "logs", Action: reconcile.ActionCreated, Changes: []string{"create logs"}},
	}
	opts := cmpopts.IgnoreFields(Entry{}, "ID", "Timestamp")
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("Recent mismatch (-want +got):\n%s", diff)
	}
}

func TestLedger_ByResourceAndRetention(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	entries := []Entry{
		{RunID: "r1", Kind: "bucket", Name: "logs", Action: reconcile.ActionUpdated, Timestamp: now.Add(-40 * 24 * time.Hour)},
		{RunID: "r2", Kind: "bucket", Name: "logs", Action: reconcile.ActionUpdated, Timestamp: now.Add(-time.Hour)},
		{RunID: "r2", Kind: "dns-zone", Name: "logs", Action: reconcile.ActionUnmanaged, Timestamp: now.Add(-time.Hour)},
	}
	for _, e := range entries {
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := l.ByResource(ctx, "bucket", "logs", 10)
	if err != nil {
		t.Fatalf("ByResource() error = %v", err)
	}
	if len(got) != 2 || got[0].RunID != "r2" {
		t.Fatalf("ByResource() = %+v, want 2 entries newest first", got)
	}

	deleted, err := l.DeleteOlderThan(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	rest, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("remaining entries = %d, want 2", len(rest))
	}
}
