package store

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"sponsorsync/internal/task"
)

func mk(sponsor string, source task.Source, name, status string) task.Task {
	return task.Task{SponsorID: sponsor, Source: source, Name: name, DueDate: "2025-08-01", Status: status}
}

func TestReplaceOverwritesOnlyOneSponsor(t *testing.T) {
	s := New()
	s.Replace("abc", []task.Task{
		mk("abc", task.SourceSalesforce, "Finalize contract", "pending"),
		mk("abc", task.SourceAsana, "Post campaign assets", "done"),
	})
	s.Replace("xyz", []task.Task{
		mk("xyz", task.SourceSalesforce, "Finalize contract", "pending"),
	})

	before := s.Query(task.Filter{SponsorID: "xyz"})

	s.Replace("abc", []task.Task{
		mk("abc", task.SourceGoogleCalendar, "Activation deadline", "pending"),
	})

	got := s.Query(task.Filter{SponsorID: "abc"})
	if len(got) != 1 || got[0].Name != "Activation deadline" {
		t.Fatalf("stale records survived replace: %+v", got)
	}
	after := s.Query(task.Filter{SponsorID: "xyz"})
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("replace for abc touched xyz: before=%+v after=%+v", before, after)
	}
}

func TestReplaceEmptySetClearsSponsor(t *testing.T) {
	s := New()
	s.Replace("abc", []task.Task{mk("abc", task.SourceAsana, "A", "pending")})
	s.Replace("abc", nil)
	if got := s.Query(task.Filter{SponsorID: "abc"}); len(got) != 0 {
		t.Fatalf("expected empty partition, got %+v", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.Register("abc")
	}
	s.Register("xyz")

	got := s.Sponsors()
	want := []string{"abc", "xyz"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sponsors = %v, want %v", got, want)
	}
}

func TestSponsorsSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Register("abc")
	snap := s.Sponsors()
	snap[0] = "mutated"
	if got := s.Sponsors(); got[0] != "abc" {
		t.Fatalf("snapshot mutation leaked into store: %v", got)
	}
}

func TestQueryFilters(t *testing.T) {
	s := New()
	s.Replace("abc", []task.Task{
		mk("abc", task.SourceSalesforce, "Finalize contract", "pending"),
		mk("abc", task.SourceAsana, "Post campaign assets", "done"),
	})
	s.Replace("xyz", []task.Task{
		mk("xyz", task.SourceAsana, "Review creative brief", "pending"),
	})

	cases := []struct {
		f    task.Filter
		want int
	}{
		{task.Filter{}, 3},
		{task.Filter{SponsorID: "abc"}, 2},
		{task.Filter{Status: "pending"}, 2},
		{task.Filter{SponsorID: "abc", Status: "pending"}, 1},
		{task.Filter{SponsorID: "abc", Status: "missing"}, 0},
		{task.Filter{SponsorID: "nobody"}, 0},
	}
	for _, c := range cases {
		got := s.Query(c.f)
		if len(got) != c.want {
			t.Fatalf("Query(%+v) returned %d records, want %d", c.f, len(got), c.want)
		}
		for _, rec := range got {
			if !c.f.Matches(rec) {
				t.Fatalf("Query(%+v) returned non-matching record %+v", c.f, rec)
			}
		}
	}
}

func TestQueryPreservesStoreOrder(t *testing.T) {
	s := New()
	s.Replace("abc", []task.Task{
		mk("abc", task.SourceSalesforce, "first", "pending"),
		mk("abc", task.SourceSalesforce, "second", "pending"),
		mk("abc", task.SourceAsana, "third", "pending"),
	})
	got := s.Query(task.Filter{SponsorID: "abc"})
	names := []string{got[0].Name, got[1].Name, got[2].Name}
	if !reflect.DeepEqual(names, []string{"first", "second", "third"}) {
		t.Fatalf("order not preserved: %v", names)
	}
}

func TestUpdateStatusMatchOrFail(t *testing.T) {
	s := New()
	s.Replace("abc", []task.Task{
		mk("abc", task.SourceSalesforce, "Finalize contract", "pending"),
		mk("abc", task.SourceSalesforce, "Finalize contract", "pending"), // duplicate name within source
		mk("abc", task.SourceAsana, "Finalize contract", "pending"),
	})

	before := s.Query(task.Filter{})
	if _, err := s.UpdateStatus("abc", task.SourceGoogleCalendar, "Finalize contract", "done"); err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	if after := s.Query(task.Filter{}); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed update mutated the store")
	}

	n, err := s.UpdateStatus("abc", task.SourceSalesforce, "Finalize contract", "done")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 matches, got %d", n)
	}
	done := s.Query(task.Filter{Status: "done"})
	if len(done) != 2 {
		t.Fatalf("expected 2 done records, got %d", len(done))
	}
	for _, rec := range done {
		if rec.Source != task.SourceSalesforce {
			t.Fatalf("update leaked to other sources: %+v", rec)
		}
	}
}

func TestConcurrentReplaceAndQuery(t *testing.T) {
	s := New()
	const iters = 200

	partition := func(sponsor string, n int) []task.Task {
		out := make([]task.Task, 0, 4)
		for i := 0; i < 4; i++ {
			out = append(out, mk(sponsor, task.SourceSalesforce, fmt.Sprintf("gen-%d-%d", n, i), "pending"))
		}
		return out
	}

	var wg sync.WaitGroup
	for _, sponsor := range []string{"abc", "xyz"} {
		wg.Add(1)
		go func(sponsor string) {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				s.Replace(sponsor, partition(sponsor, i))
			}
		}(sponsor)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iters; i++ {
			got := s.Query(task.Filter{SponsorID: "abc"})
			// A reader must never see a half-replaced partition: always a
			// complete generation of 4 records, all from the same write.
			if len(got) == 0 {
				continue
			}
			if len(got) != 4 {
				t.Errorf("torn read: %d records", len(got))
				return
			}
			gen := got[0].Name[:len(got[0].Name)-2]
			for _, rec := range got {
				if rec.Name[:len(rec.Name)-2] != gen {
					t.Errorf("mixed generations in one read: %v vs %v", rec.Name, got[0].Name)
					return
				}
			}
		}
	}()

	wg.Wait()
}
