package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/cloudsync/internal/diff"
	"github.com/dokzlo13/cloudsync/internal/status"
)

var (
	itemIDs   = diff.NewAllocator(1)
	itemVocab = diff.NewVocabulary("item", itemIDs)
	itemValue = itemVocab.Declare("value")
	itemZone  = itemVocab.Declare("zone")
)

type item struct {
	Name  string
	Value string
}

type itemDiff struct {
	diff.Change[*item, *item]
}

func (d itemDiff) Render() string {
	switch d.Kind() {
	case itemVocab.Unmanaged:
		return fmt.Sprintf("item %s is not managed", d.Remote.Name)
	case itemVocab.Added:
		return fmt.Sprintf("item %s will be created", d.Local.Name)
	case itemValue:
		return fmt.Sprintf("value: %s -> %s", d.Remote.Value, d.Local.Value)
	case itemZone:
		return fmt.Sprintf("item %s must be recreated to move zones", d.Local.Name)
	default:
		panic(d.Unhandled())
	}
}

func (d itemDiff) ReportOnly() bool { return d.Kind() == itemZone }

// fakeAdapter keeps remote state in memory and records every mutating call.
type fakeAdapter struct {
	local  map[string]*item
	remote map[string]*item
	calls  []string
	added  []bool // whether each Update began with the added diff

	// moved names report a zone change the adapter cannot apply.
	moved map[string]bool

	createErr error
	updateErr map[string]error
}

func newFakeAdapter(local, remote []*item) *fakeAdapter {
	a := &fakeAdapter{
		local:     make(map[string]*item),
		remote:    make(map[string]*item),
		updateErr: make(map[string]error),
		moved:     make(map[string]bool),
	}
	for _, it := range local {
		a.local[it.Name] = it
	}
	for _, it := range remote {
		a.remote[it.Name] = it
	}
	return a
}

func (a *fakeAdapter) Kind() string { return "item" }

func (a *fakeAdapter) LocalResources(ctx context.Context) (map[string]*item, error) {
	return a.local, nil
}

func (a *fakeAdapter) RemoteResources(ctx context.Context) (map[string]*item, error) {
	out := make(map[string]*item, len(a.remote))
	for k, v := range a.remote {
		cp := *v
		out[k] = &cp
	}
	return out, nil
}

func (a *fakeAdapter) DiffResource(local, remote *item) []diff.Diff {
	var out []diff.Diff
	if a.moved[local.Name] {
		out = append(out, itemDiff{diff.NewChange(itemVocab, itemZone, remote, local)})
	}
	if local.Value != remote.Value {
		out = append(out, itemDiff{diff.NewChange(itemVocab, itemValue, remote, local)})
	}
	return out
}

func (a *fakeAdapter) UnmanagedDiff(remote *item) diff.Diff {
	return itemDiff{diff.NewChange[*item, *item](itemVocab, itemVocab.Unmanaged, remote, nil)}
}

func (a *fakeAdapter) AddedDiff(local *item) diff.Diff {
	return itemDiff{diff.NewChange[*item, *item](itemVocab, itemVocab.Added, nil, local)}
}

func (a *fakeAdapter) Create(ctx context.Context, local *item) (*item, error) {
	a.calls = append(a.calls, "create "+local.Name)
	if a.createErr != nil {
		return nil, a.createErr
	}
	// Creation cannot set the value; Update finishes it.
	r := &item{Name: local.Name}
	a.remote[local.Name] = r
	return r, nil
}

func (a *fakeAdapter) Update(ctx context.Context, local *item, diffs []diff.Diff) error {
	a.calls = append(a.calls, fmt.Sprintf("update %s (%d)", local.Name, len(diffs)))
	a.added = append(a.added, len(diffs) > 0 && diffs[0].IsAdded())
	if err := a.updateErr[local.Name]; err != nil {
		return err
	}
	for _, d := range diffs {
		if d.IsUnmanaged() {
			return errors.New("update called with unmanaged diff")
		}
		if diff.ReportOnly(d) {
			return errors.New("update called with report-only diff")
		}
	}
	a.remote[local.Name] = &item{Name: local.Name, Value: local.Value}
	return nil
}

type recordingJournal struct {
	events []Event
}

func (j *recordingJournal) Record(ctx context.Context, ev Event) error {
	j.events = append(j.events, ev)
	return nil
}

type staticGuard struct {
	deny map[string]bool
	err  error
}

func (g staticGuard) Allow(ctx context.Context, kind, name string, diffs []diff.Diff) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return !g.deny[name], nil
}

func renders(all map[string][]diff.Diff) map[string][]string {
	out := make(map[string][]string, len(all))
	for name, diffs := range all {
		for _, d := range diffs {
			out[name] = append(out[name], d.Render())
		}
	}
	return out
}

func TestManager_DiffAll(t *testing.T) {
	a := newFakeAdapter(
		[]*item{{"new", "1"}, {"same", "x"}, {"drift", "want"}},
		[]*item{{"same", "x"}, {"drift", "have"}, {"stray", "?"}},
	)
	m := NewManager[*item, *item](a, status.New(), Options{})

	all, err := m.DiffAll(context.Background())
	if err != nil {
		t.Fatalf("DiffAll() error = %v", err)
	}

	want := map[string][]string{
		"new":   {"item new will be created"},
		"drift": {"value: have -> want"},
		"stray": {"item stray is not managed"},
	}
	if diff := cmp.Diff(want, renders(all)); diff != "" {
		t.Errorf("DiffAll mismatch (-want +got):\n%s", diff)
	}
	if len(a.calls) != 0 {
		t.Errorf("DiffAll issued calls: %v", a.calls)
	}
}

func TestManager_Diff_Single(t *testing.T) {
	a := newFakeAdapter(
		[]*item{{"new", "1"}, {"drift", "want"}},
		[]*item{{"drift", "have"}, {"stray", "?"}},
	)
	m := NewManager[*item, *item](a, status.New(), Options{})
	ctx := context.Background()

	diffs, err := m.Diff(ctx, "drift")
	if err != nil {
		t.Fatalf("Diff(drift) error = %v", err)
	}
	if len(diffs) != 1 || diffs[0].Kind() != itemValue {
		t.Errorf("Diff(drift) = %v", diffs)
	}

	diffs, err = m.Diff(ctx, "new")
	if err != nil {
		t.Fatalf("Diff(new) error = %v", err)
	}
	if !diff.Only(diffs, diff.Added) {
		t.Errorf("Diff(new) should be a single added diff, got %v", diffs)
	}

	if _, err := m.Diff(ctx, "stray"); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("Diff(stray) error = %v, want ErrNotDeclared", err)
	}
}

func TestManager_SyncAll_Add(t *testing.T) {
	a := newFakeAdapter([]*item{{"a", "X"}}, nil)
	agg := status.New()
	j := &recordingJournal{}
	m := NewManager[*item, *item](a, agg, Options{Journal: j})

	if err := m.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}

	if diff := cmp.Diff([]string{"create a", "update a (1)"}, a.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true}, a.added); diff != "" {
		t.Errorf("update after create should receive the added diff (-want +got):\n%s", diff)
	}
	if agg.Current() != status.DiffsSynced {
		t.Errorf("status = %v, want %v", agg.Current(), status.DiffsSynced)
	}
	if len(j.events) != 1 || j.events[0].Action != ActionCreated {
		t.Errorf("journal = %+v, want one created event", j.events)
	}
}

func TestManager_SyncAll_UnmanagedIsNeverTouched(t *testing.T) {
	a := newFakeAdapter(nil, []*item{{"b", "Y"}})
	agg := status.New()
	j := &recordingJournal{}
	m := NewManager[*item, *item](a, agg, Options{Journal: j})

	all, err := m.DiffAll(context.Background())
	if err != nil {
		t.Fatalf("DiffAll() error = %v", err)
	}
	if !diff.Only(all["b"], diff.Unmanaged) {
		t.Fatalf("DiffAll()[b] = %v, want single unmanaged diff", all["b"])
	}

	if err := m.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if len(a.calls) != 0 {
		t.Errorf("SyncAll issued calls for unmanaged resource: %v", a.calls)
	}
	if agg.Current() != status.DiffsFound {
		t.Errorf("status = %v, want %v", agg.Current(), status.DiffsFound)
	}
	if len(j.events) != 1 || j.events[0].Action != ActionUnmanaged {
		t.Errorf("journal = %+v, want one unmanaged event", j.events)
	}
}

func TestManager_SyncAll_ReportOnly(t *testing.T) {
	a := newFakeAdapter(
		[]*item{{"a", "1"}, {"b", "2"}},
		[]*item{{"a", "1"}, {"b", "0"}},
	)
	a.moved["a"] = true
	a.moved["b"] = true
	agg := status.New()
	j := &recordingJournal{}
	m := NewManager[*item, *item](a, agg, Options{Journal: j})

	if err := m.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if diff := cmp.Diff([]string{"update b (1)"}, a.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	var got []string
	for _, ev := range j.events {
		got = append(got, fmt.Sprintf("%s %s %d", ev.Name, ev.Action, len(ev.Diffs)))
	}
	want := []string{"a reported 1", "b reported 1", "b updated 1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("journal mismatch (-want +got):\n%s", diff)
	}
	if agg.Current() != status.DiffsSynced {
		t.Errorf("status = %v, want %v", agg.Current(), status.DiffsSynced)
	}
}

func TestManager_Sync_ReportOnlyRecordsDiffsFound(t *testing.T) {
	a := newFakeAdapter([]*item{{"a", "1"}}, []*item{{"a", "1"}})
	a.moved["a"] = true
	agg := status.New()
	m := NewManager[*item, *item](a, agg, Options{})

	if err := m.Sync(context.Background(), "a"); err != nil {
		t.Fatalf("Sync(a) error = %v", err)
	}
	if len(a.calls) != 0 {
		t.Errorf("no calls expected, got %v", a.calls)
	}
	if agg.Current() != status.DiffsFound {
		t.Errorf("status = %v, want %v", agg.Current(), status.DiffsFound)
	}
}

func TestManager_SyncAll_Idempotent(t *testing.T) {
	a := newFakeAdapter(
		[]*item{{"a", "1"}, {"b", "2"}},
		[]*item{{"b", "old"}},
	)
	m := NewManager[*item, *item](a, status.New(), Options{})
	ctx := context.Background()

	if err := m.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	all, err := m.DiffAll(ctx)
	if err != nil {
		t.Fatalf("DiffAll() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("DiffAll after sync = %v, want empty", renders(all))
	}
}

func TestManager_SyncAll_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	a := newFakeAdapter(
		[]*item{{"a", "1"}, {"b", "2"}, {"c", "3"}},
		[]*item{{"a", "0"}, {"b", "0"}, {"c", "0"}},
	)
	a.updateErr["b"] = boom
	agg := status.New()
	j := &recordingJournal{}
	m := NewManager[*item, *item](a, agg, Options{Journal: j})

	err := m.SyncAll(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("SyncAll() error = %v, want %v", err, boom)
	}
	if diff := cmp.Diff([]string{"update a (1)", "update b (1)"}, a.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if a.remote["a"].Value != "1" {
		t.Error("change applied before the failure should stay in place")
	}
	if last := j.events[len(j.events)-1]; last.Action != ActionFailed || last.Name != "b" {
		t.Errorf("last journal event = %+v, want failed b", last)
	}
}

func TestManager_SyncAll_CreateFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	a := newFakeAdapter([]*item{{"a", "1"}}, nil)
	a.createErr = boom
	m := NewManager[*item, *item](a, status.New(), Options{})

	if err := m.SyncAll(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("SyncAll() error = %v, want %v", err, boom)
	}
	if diff := cmp.Diff([]string{"create a"}, a.calls); diff != "" {
		t.Errorf("update must not follow a failed create (-want +got):\n%s", diff)
	}
}

func TestManager_Sync_Single(t *testing.T) {
	a := newFakeAdapter(
		[]*item{{"a", "1"}, {"b", "2"}},
		[]*item{{"a", "0"}, {"b", "0"}, {"stray", "?"}},
	)
	m := NewManager[*item, *item](a, status.New(), Options{})
	ctx := context.Background()

	if err := m.Sync(ctx, "b"); err != nil {
		t.Fatalf("Sync(b) error = %v", err)
	}
	if diff := cmp.Diff([]string{"update b (1)"}, a.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	a.calls = nil
	if err := m.Sync(ctx, "b"); err != nil {
		t.Fatalf("Sync(b) second pass error = %v", err)
	}
	if len(a.calls) != 0 {
		t.Errorf("in-sync resource should issue no calls, got %v", a.calls)
	}

	if err := m.Sync(ctx, "stray"); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("Sync(stray) error = %v, want ErrNotDeclared", err)
	}
}

func TestManager_SyncGuard(t *testing.T) {
	a := newFakeAdapter(
		[]*item{{"a", "1"}, {"b", "2"}},
		[]*item{{"a", "0"}, {"b", "0"}},
	)
	agg := status.New()
	j := &recordingJournal{}
	m := NewManager[*item, *item](a, agg, Options{
		Guard:   staticGuard{deny: map[string]bool{"a": true}},
		Journal: j,
	})

	if err := m.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if diff := cmp.Diff([]string{"update b (1)"}, a.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if j.events[0].Action != ActionVetoed || j.events[0].Name != "a" {
		t.Errorf("first event = %+v, want vetoed a", j.events[0])
	}
	if agg.Current() != status.DiffsSynced {
		t.Errorf("status = %v, want %v", agg.Current(), status.DiffsSynced)
	}
}

func TestManager_SyncGuardError(t *testing.T) {
	a := newFakeAdapter([]*item{{"a", "1"}}, []*item{{"a", "0"}})
	m := NewManager[*item, *item](a, status.New(), Options{Guard: staticGuard{err: errors.New("script error")}})

	if err := m.SyncAll(context.Background()); err == nil {
		t.Fatal("SyncAll() should fail when the guard fails")
	}
	if len(a.calls) != 0 {
		t.Errorf("no calls expected, got %v", a.calls)
	}
}

func TestManager_RunDiff(t *testing.T) {
	a := newFakeAdapter(
		[]*item{{"a", "1"}, {"same", "s"}},
		[]*item{{"a", "0"}, {"same", "s"}, {"stray", "?"}},
	)
	var out bytes.Buffer
	agg := status.New()
	m := NewManager[*item, *item](a, agg, Options{Printer: NewPrinter(&out, false)})
	ctx := context.Background()

	if err := m.RunDiff(ctx, "same"); err != nil {
		t.Fatalf("RunDiff(same) error = %v", err)
	}
	if agg.Current() != status.OK {
		t.Errorf("status after in-sync diff = %v, want ok", agg.Current())
	}

	if err := m.RunDiff(ctx, ""); err != nil {
		t.Fatalf("RunDiff() error = %v", err)
	}
	want := "a:\n\tvalue: 0 -> 1\nitem stray is not managed\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if agg.Current() != status.DiffsFound {
		t.Errorf("status = %v, want %v", agg.Current(), status.DiffsFound)
	}
	if len(a.calls) != 0 {
		t.Errorf("RunDiff issued calls: %v", a.calls)
	}
}

func TestManager_RunSync_PrintsPlan(t *testing.T) {
	a := newFakeAdapter([]*item{{"a", "1"}}, nil)
	var out bytes.Buffer
	m := NewManager[*item, *item](a, status.New(), Options{Printer: NewPrinter(&out, false)})

	if err := m.RunSync(context.Background(), ""); err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if !strings.Contains(out.String(), "item a will be created") {
		t.Errorf("output = %q, want the added diff rendered", out.String())
	}
}

func TestManager_RateLimiterCancelled(t *testing.T) {
	a := newFakeAdapter([]*item{{"a", "1"}}, nil)
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	m := NewManager[*item, *item](a, status.New(), Options{Limiter: limiter})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.SyncAll(ctx); err == nil {
		t.Fatal("SyncAll() with cancelled context should fail")
	}
	if len(a.calls) != 0 {
		t.Errorf("no calls expected after cancellation, got %v", a.calls)
	}
}
