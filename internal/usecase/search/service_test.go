package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dondelocompro/pricehub/internal/domain"
	"github.com/dondelocompro/pricehub/internal/stream"
)

// --- Mocks ---

type fakeRegistry struct {
	vendors  []domain.Vendor
	adapters map[string]domain.Adapter
}

func (f *fakeRegistry) ActiveVendors() []domain.Vendor { return f.vendors }

func (f *fakeRegistry) Adapter(id string) (domain.Adapter, bool) {
	a, ok := f.adapters[id]
	return a, ok
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{adapters: make(map[string]domain.Adapter)}
}

func (f *fakeRegistry) add(id string, a domain.Adapter) {
	f.vendors = append(f.vendors, domain.Vendor{ID: id, Name: id, Currency: "GTQ", Active: true})
	f.adapters[id] = a
}

func price(v float64) *float64 { return &v }

// staticAdapter returns the given items after delay, honoring the context.
func staticAdapter(items []domain.Item, delay time.Duration) domain.Adapter {
	return domain.AdapterFunc(func(ctx context.Context, _ string, _ int) ([]domain.Item, error) {
		select {
		case <-time.After(delay):
			return items, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// blockingAdapter never returns until its context ends.
func blockingAdapter() domain.Adapter {
	return domain.AdapterFunc(func(ctx context.Context, _ string, _ int) ([]domain.Item, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func failingAdapter(err error) domain.Adapter {
	return domain.AdapterFunc(func(_ context.Context, _ string, _ int) ([]domain.Item, error) {
		return nil, err
	})
}

func newService(reg Registry) *Service {
	return New(reg, zap.NewNop()).
		WithVendorTimeout(80 * time.Millisecond).
		WithRetention(time.Minute)
}

// collectEvents reads the subscription until its channel closes.
func collectEvents(t *testing.T, sub *stream.Subscription) []domain.Event {
	t.Helper()
	var out []domain.Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("timed out waiting for stream to end; got %d events", len(out))
		}
	}
}

func countKind(events []domain.Event, kind domain.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func findKind(events []domain.Event, kind domain.EventKind) (domain.Event, bool) {
	for _, e := range events {
		if e.Kind == kind {
			return e, true
		}
	}
	return domain.Event{}, false
}

// --- Tests ---

func TestSearch_PartialFailure(t *testing.T) {
	// Vendor A returns two priced items quickly; vendor B times out.
	reg := newFakeRegistry()
	reg.add("a", staticAdapter([]domain.Item{
		{Name: "first", Price: price(100)},
		{Name: "second", Price: price(200)},
	}, 10*time.Millisecond))
	reg.add("b", blockingAdapter())

	svc := newService(reg)
	id, err := svc.Start("laptop", 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	sub, err := svc.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	events := collectEvents(t, sub)

	if got := countKind(events, domain.EventSearchStarted); got != 1 {
		t.Errorf("search_started count = %d, want 1", got)
	}
	if got := countKind(events, domain.EventVendorStarted); got != 2 {
		t.Errorf("vendor_started count = %d, want 2", got)
	}
	if got := countKind(events, domain.EventProductFound); got != 2 {
		t.Errorf("product_found count = %d, want 2", got)
	}
	if got := countKind(events, domain.EventVendorCompleted); got != 1 {
		t.Errorf("vendor_completed count = %d, want 1", got)
	}
	if got := countKind(events, domain.EventVendorError); got != 1 {
		t.Errorf("vendor_error count = %d, want 1", got)
	}

	verr, _ := findKind(events, domain.EventVendorError)
	if verr.VendorID != "b" || verr.ErrorKind != string(domain.VendorErrTimeout) {
		t.Errorf("vendor_error = {vendor=%s kind=%s}, want {b timeout}", verr.VendorID, verr.ErrorKind)
	}
	vdone, _ := findKind(events, domain.EventVendorCompleted)
	if vdone.VendorID != "a" || vdone.ItemCount != 2 {
		t.Errorf("vendor_completed = {vendor=%s count=%d}, want {a 2}", vdone.VendorID, vdone.ItemCount)
	}

	// One vendor failing never fails the search.
	last := events[len(events)-1]
	if last.Kind != domain.EventSearchCompleted {
		t.Fatalf("last event = %s, want search_completed", last.Kind)
	}
	if last.TotalItems != 2 {
		t.Errorf("total_items = %d, want 2", last.TotalItems)
	}
	if *last.Summary.MinPrice != 100 || *last.Summary.MaxPrice != 200 || *last.Summary.MeanPrice != 150 {
		t.Errorf("summary = min=%v max=%v mean=%v, want 100/200/150",
			*last.Summary.MinPrice, *last.Summary.MaxPrice, *last.Summary.MeanPrice)
	}

	// Every product_found precedes the terminal event.
	for i, e := range events {
		if e.Kind == domain.EventProductFound && i >= len(events)-1 {
			t.Error("product_found emitted at or after the terminal event")
		}
	}

	// Sequence numbers are strictly increasing from 1.
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d, want %d", i, e.Seq, i+1)
		}
	}

	snap, err := svc.Snapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if snap.VendorOutcomes["a"].State != domain.OutcomeSucceeded {
		t.Errorf("vendor a outcome = %s, want succeeded", snap.VendorOutcomes["a"].State)
	}
	if snap.VendorOutcomes["b"].State != domain.OutcomeTimedOut {
		t.Errorf("vendor b outcome = %s, want timed_out", snap.VendorOutcomes["b"].State)
	}
	if len(snap.Items) != 2 {
		t.Errorf("items = %d, want 2", len(snap.Items))
	}
}

func TestSearch_NoActiveVendors(t *testing.T) {
	svc := newService(newFakeRegistry())
	id, err := svc.Start("tv", 10)
	if err != nil {
		t.Fatalf("start must succeed even with no vendors: %v", err)
	}

	sub, err := svc.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	events := collectEvents(t, sub)

	if got := countKind(events, domain.EventProductFound); got != 0 {
		t.Errorf("product_found count = %d, want 0", got)
	}
	last := events[len(events)-1]
	if last.Kind != domain.EventSearchFailed {
		t.Fatalf("last event = %s, want search_failed", last.Kind)
	}
	if last.Error != domain.ErrNoActiveVendors.Error() {
		t.Errorf("error = %q, want %q", last.Error, domain.ErrNoActiveVendors.Error())
	}

	snap, _ := svc.Snapshot(id)
	if snap.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", snap.Status)
	}
}

func TestSearch_AllVendorsFail_StillCompletes(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("a", failingAdapter(fmt.Errorf("fetch: %w", domain.ErrVendorTransport)))
	reg.add("b", failingAdapter(fmt.Errorf("decode: %w", domain.ErrVendorMalformed)))

	svc := newService(reg)
	id, _ := svc.Start("drill", 10)
	sub, _ := svc.Subscribe(id)
	events := collectEvents(t, sub)

	if got := countKind(events, domain.EventVendorError); got != 2 {
		t.Errorf("vendor_error count = %d, want 2", got)
	}
	last := events[len(events)-1]
	if last.Kind != domain.EventSearchCompleted {
		t.Fatalf("search with only vendor-scoped failures must complete, got %s", last.Kind)
	}
	if last.TotalItems != 0 {
		t.Errorf("total_items = %d, want 0", last.TotalItems)
	}
	if last.Summary.MinPrice != nil {
		t.Error("price stats must be absent with no items")
	}
}

func TestSearch_FailureClassification(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("limited", failingAdapter(fmt.Errorf("status 429: %w", domain.ErrVendorRateLimited)))
	reg.add("broken", failingAdapter(errors.New("connection refused")))

	svc := newService(reg)
	id, _ := svc.Start("fridge", 5)
	sub, _ := svc.Subscribe(id)
	events := collectEvents(t, sub)

	kinds := map[string]string{}
	for _, e := range events {
		if e.Kind == domain.EventVendorError {
			kinds[e.VendorID] = e.ErrorKind
		}
	}
	if kinds["limited"] != string(domain.VendorErrRateLimited) {
		t.Errorf("limited classified as %q, want rate_limited", kinds["limited"])
	}
	if kinds["broken"] != string(domain.VendorErrTransport) {
		t.Errorf("broken classified as %q, want transport", kinds["broken"])
	}

	snap, _ := svc.Snapshot(id)
	if snap.VendorOutcomes["limited"].State != domain.OutcomeFailed {
		t.Errorf("limited outcome = %s, want failed", snap.VendorOutcomes["limited"].State)
	}
}

func TestSearch_TruncatesToMaxResults(t *testing.T) {
	items := make([]domain.Item, 5)
	for i := range items {
		items[i] = domain.Item{Name: fmt.Sprintf("item-%d", i), Price: price(float64(10 * (i + 1)))}
	}
	reg := newFakeRegistry()
	reg.add("a", staticAdapter(items, 0))

	svc := newService(reg)
	id, _ := svc.Start("mug", 3)
	sub, _ := svc.Subscribe(id)
	events := collectEvents(t, sub)

	if got := countKind(events, domain.EventProductFound); got != 3 {
		t.Errorf("product_found count = %d, want 3", got)
	}
	vdone, _ := findKind(events, domain.EventVendorCompleted)
	if vdone.ItemCount != 3 {
		t.Errorf("vendor_completed item_count = %d, want 3", vdone.ItemCount)
	}
}

func TestSearch_PreservesVendorItemOrder(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("a", staticAdapter([]domain.Item{
		{Name: "one"}, {Name: "two"}, {Name: "three"},
	}, 0))

	svc := newService(reg)
	id, _ := svc.Start("hammer", 10)
	sub, _ := svc.Subscribe(id)
	events := collectEvents(t, sub)

	var names []string
	for _, e := range events {
		if e.Kind == domain.EventProductFound {
			names = append(names, e.Item.Name)
		}
	}
	want := []string{"one", "two", "three"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("item order %v, want %v", names, want)
		}
	}
}

func TestSnapshot_IdempotentAfterCompletion(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("a", staticAdapter([]domain.Item{{Name: "x", Price: price(50)}}, 0))

	svc := newService(reg)
	id, _ := svc.Start("spoon", 10)
	sub, _ := svc.Subscribe(id)
	collectEvents(t, sub) // wait for completion

	first, err := svc.Snapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// A snapshot is detached: mutating it must not leak into the record.
	first.Items[0].Name = "mutated"
	first.VendorOutcomes["a"] = domain.VendorOutcome{State: domain.OutcomePending}

	second, err := svc.Snapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if second.Items[0].Name != "x" {
		t.Error("snapshot items are not detached copies")
	}
	if second.VendorOutcomes["a"].State != domain.OutcomeSucceeded {
		t.Error("snapshot outcomes are not detached copies")
	}
	if second.Status != domain.StatusCompleted || second.Summary.Count != 1 {
		t.Errorf("unexpected snapshot: status=%s count=%d", second.Status, second.Summary.Count)
	}
}

func TestSubscribe_AfterCompletion_ReplaysFullHistory(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("a", staticAdapter([]domain.Item{{Name: "x"}}, 0))

	svc := newService(reg)
	id, _ := svc.Start("plate", 10)
	live, _ := svc.Subscribe(id)
	want := collectEvents(t, live)

	late, err := svc.Subscribe(id)
	if err != nil {
		t.Fatalf("late subscribe: %v", err)
	}
	got := collectEvents(t, late)

	if len(got) != len(want) {
		t.Fatalf("late subscriber got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Kind != want[i].Kind || got[i].Seq != want[i].Seq {
			t.Fatalf("event %d = {%s seq=%d}, want {%s seq=%d}",
				i, got[i].Kind, got[i].Seq, want[i].Kind, want[i].Seq)
		}
	}
	if got[len(got)-1].Kind != domain.EventSearchCompleted {
		t.Errorf("replay must end with the terminal event, got %s", got[len(got)-1].Kind)
	}
}

func TestCancel(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("fast", staticAdapter([]domain.Item{{Name: "x"}}, 0))
	reg.add("slow", blockingAdapter())

	svc := New(reg, zap.NewNop()).
		WithVendorTimeout(2 * time.Second). // cancel fires well before this
		WithRetention(time.Minute)

	id, _ := svc.Start("sofa", 10)
	sub, _ := svc.Subscribe(id)

	// Wait until the fast vendor is done, then cancel.
	deadline := time.After(2 * time.Second)
	for {
		var e domain.Event
		select {
		case e = <-sub.Events():
		case <-deadline:
			t.Fatal("timed out waiting for fast vendor to complete")
		}
		if e.Kind == domain.EventVendorCompleted {
			break
		}
	}
	if err := svc.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	events := collectEvents(t, sub)

	last := events[len(events)-1]
	if last.Kind != domain.EventSearchFailed {
		t.Fatalf("cancelled search must fail, got %s", last.Kind)
	}

	snap, _ := svc.Snapshot(id)
	if snap.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", snap.Status)
	}
	if snap.VendorOutcomes["fast"].State != domain.OutcomeSucceeded {
		t.Errorf("completed outcome must be untouched, got %s", snap.VendorOutcomes["fast"].State)
	}
	if snap.VendorOutcomes["slow"].State != domain.OutcomeCancelled {
		t.Errorf("pending vendor must be cancelled, got %s", snap.VendorOutcomes["slow"].State)
	}

	// Cancelling again is a no-op.
	if err := svc.Cancel(id); err != nil {
		t.Errorf("repeat cancel: %v", err)
	}
}

func TestStart_Validation(t *testing.T) {
	svc := newService(newFakeRegistry())
	if _, err := svc.Start("   ", 10); err == nil {
		t.Error("expected error for blank query")
	}
	if _, err := svc.Start("tv", 0); err == nil {
		t.Error("expected error for non-positive max results")
	}
}

func TestUnknownSearchID(t *testing.T) {
	svc := newService(newFakeRegistry())

	if _, err := svc.Snapshot("nope"); !errors.Is(err, domain.ErrSearchNotFound) {
		t.Errorf("snapshot: expected ErrSearchNotFound, got %v", err)
	}
	if _, err := svc.Subscribe("nope"); !errors.Is(err, domain.ErrSearchNotFound) {
		t.Errorf("subscribe: expected ErrSearchNotFound, got %v", err)
	}
	if err := svc.Cancel("nope"); !errors.Is(err, domain.ErrSearchNotFound) {
		t.Errorf("cancel: expected ErrSearchNotFound, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  laptop  ", "laptop"},
		{"gaming\t laptop ", "gaming laptop"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTotalItems_MatchesSucceededVendorCounts(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("a", staticAdapter([]domain.Item{{Name: "a1"}, {Name: "a2"}}, 5*time.Millisecond))
	reg.add("b", staticAdapter([]domain.Item{{Name: "b1"}}, 0))
	reg.add("c", failingAdapter(errors.New("down")))

	svc := newService(reg)
	id, _ := svc.Start("chair", 10)
	sub, _ := svc.Subscribe(id)
	events := collectEvents(t, sub)

	sum := 0
	for _, e := range events {
		if e.Kind == domain.EventVendorCompleted {
			sum += e.ItemCount
		}
	}
	last := events[len(events)-1]
	if last.Kind != domain.EventSearchCompleted {
		t.Fatalf("last event = %s", last.Kind)
	}
	if last.TotalItems != sum {
		t.Errorf("total_items = %d, sum of vendor counts = %d", last.TotalItems, sum)
	}

	snap, _ := svc.Snapshot(id)
	if len(snap.Items) != last.TotalItems {
		t.Errorf("record has %d items, terminal event says %d", len(snap.Items), last.TotalItems)
	}
}
