package syncer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"sponsorsync/internal/eventbus"
	"sponsorsync/internal/source"
	"sponsorsync/internal/store"
	"sponsorsync/internal/task"
	logx "sponsorsync/pkg/logx"
)

// stubAdapter serves canned records or a canned error.
type stubAdapter struct {
	name task.Source
	recs []string
	err  error

	mu    sync.Mutex
	calls int
}

func (a *stubAdapter) Name() task.Source { return a.name }

func (a *stubAdapter) Fetch(ctx context.Context, sponsorID string) ([]task.Task, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	out := make([]task.Task, 0, len(a.recs))
	for _, name := range a.recs {
		out = append(out, task.Task{SponsorID: sponsorID, Source: a.name, Name: name, DueDate: "2025-08-01", Status: "pending"})
	}
	return out, nil
}

func newEngine(st *store.Store, bus eventbus.Bus, adapters ...source.Adapter) *Engine {
	return New(st, adapters, logx.Nop(), bus, 0)
}

func TestSyncSponsorMergesInAdapterOrder(t *testing.T) {
	st := store.New()
	e := newEngine(st, nil,
		&stubAdapter{name: task.SourceSalesforce, recs: []string{"sf-1", "sf-2"}},
		&stubAdapter{name: task.SourceAsana, recs: []string{"as-1"}},
		&stubAdapter{name: task.SourceGoogleCalendar, recs: []string{"gc-1"}},
	)

	got, err := e.SyncSponsor(context.Background(), "sponsor-abc", TriggerManual)
	if err != nil {
		t.Fatalf("SyncSponsor: %v", err)
	}
	names := make([]string, 0, len(got))
	for _, rec := range got {
		names = append(names, rec.Name)
	}
	want := []string{"sf-1", "sf-2", "as-1", "gc-1"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("merge order = %v, want %v", names, want)
	}

	stored := st.Query(task.Filter{SponsorID: "sponsor-abc"})
	if !reflect.DeepEqual(stored, got) {
		t.Fatalf("store does not match returned set")
	}
}

func TestSyncSponsorReplacesPriorRun(t *testing.T) {
	st := store.New()
	a := &stubAdapter{name: task.SourceSalesforce, recs: []string{"old"}}
	e := newEngine(st, nil, a)

	if _, err := e.SyncSponsor(context.Background(), "abc", TriggerManual); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	a.recs = []string{"new-1", "new-2"}
	if _, err := e.SyncSponsor(context.Background(), "abc", TriggerScheduled); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	stored := st.Query(task.Filter{SponsorID: "abc"})
	if len(stored) != 2 || stored[0].Name != "new-1" {
		t.Fatalf("stale records after re-sync: %+v", stored)
	}
}

func TestSyncSponsorFailureLeavesStoreUntouched(t *testing.T) {
	st := store.New()
	good := &stubAdapter{name: task.SourceSalesforce, recs: []string{"keep-me"}}
	e := newEngine(st, nil, good)
	if _, err := e.SyncSponsor(context.Background(), "abc", TriggerManual); err != nil {
		t.Fatalf("seed sync: %v", err)
	}
	before := st.Query(task.Filter{})

	boom := errors.New("asana 503")
	e2 := newEngine(st, nil, good, &stubAdapter{name: task.SourceAsana, err: boom})
	_, err := e2.SyncSponsor(context.Background(), "abc", TriggerScheduled)
	if err == nil {
		t.Fatalf("expected failure")
	}
	var se *SourceError
	if !errors.As(err, &se) || se.Source != task.SourceAsana || !errors.Is(err, boom) {
		t.Fatalf("unexpected error shape: %v", err)
	}

	after := st.Query(task.Filter{})
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("failed sync partially replaced the store: before=%+v after=%+v", before, after)
	}
}

func TestSyncSponsorRejectsEmptyID(t *testing.T) {
	e := newEngine(store.New(), nil, &stubAdapter{name: task.SourceSalesforce})
	if _, err := e.SyncSponsor(context.Background(), "   ", TriggerManual); err != ErrEmptySponsorID {
		t.Fatalf("expected ErrEmptySponsorID, got %v", err)
	}
}

func TestSyncSponsorRegistersOnce(t *testing.T) {
	st := store.New()
	e := newEngine(st, nil, &stubAdapter{name: task.SourceSalesforce, recs: []string{"x"}})
	for i := 0; i < 3; i++ {
		if _, err := e.SyncSponsor(context.Background(), "abc", TriggerManual); err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
	}
	if got := st.Sponsors(); len(got) != 1 || got[0] != "abc" {
		t.Fatalf("sponsors = %v, want [abc]", got)
	}
}

func TestSyncSponsorRegistersEvenWhenFetchFails(t *testing.T) {
	st := store.New()
	e := newEngine(st, nil, &stubAdapter{name: task.SourceSalesforce, err: errors.New("down")})
	if _, err := e.SyncSponsor(context.Background(), "abc", TriggerManual); err == nil {
		t.Fatalf("expected failure")
	}
	// The next scheduled tick should retry this sponsor.
	if got := st.Sponsors(); len(got) != 1 || got[0] != "abc" {
		t.Fatalf("sponsors = %v, want [abc]", got)
	}
}

func TestSyncSponsorPublishesRunEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	st := store.New()
	e := newEngine(st, bus, &stubAdapter{name: task.SourceSalesforce, recs: []string{"x"}})
	if _, err := e.SyncSponsor(context.Background(), "abc", TriggerManual); err != nil {
		t.Fatalf("sync: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != eventbus.TypeSyncCompleted {
			t.Fatalf("event type = %q", ev.Type)
		}
		info, ok := ev.Data.(RunInfo)
		if !ok {
			t.Fatalf("event data = %T", ev.Data)
		}
		if info.SponsorID != "abc" || info.Trigger != TriggerManual || info.Tasks != 1 {
			t.Fatalf("unexpected run info: %+v", info)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event published")
	}
}

func TestConcurrentSameSponsorSyncsNeverTear(t *testing.T) {
	st := store.New()

	// Each engine run writes a partition tagged with its generation; a torn
	// interleave would mix generations within one read.
	genAdapter := func(gen int) source.Adapter {
		return &stubAdapter{name: task.SourceSalesforce, recs: []string{
			fmt.Sprintf("g%d-a", gen), fmt.Sprintf("g%d-b", gen),
		}}
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			e := newEngine(st, nil, genAdapter(g))
			if _, err := e.SyncSponsor(context.Background(), "abc", TriggerScheduled); err != nil {
				t.Errorf("sync gen %d: %v", g, err)
			}
		}(g)
	}
	wg.Wait()

	got := st.Query(task.Filter{SponsorID: "abc"})
	if len(got) != 2 {
		t.Fatalf("expected one complete generation (2 records), got %d", len(got))
	}
	if got[0].Name[:2] != got[1].Name[:2] {
		t.Fatalf("mixed generations: %v / %v", got[0].Name, got[1].Name)
	}
}
