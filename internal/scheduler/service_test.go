package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sponsorsync/internal/syncer"
	"sponsorsync/internal/task"
	logx "sponsorsync/pkg/logx"
)

type fakeSyncer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	block chan struct{} // if set, SyncSponsor waits on it
}

func (f *fakeSyncer) SyncSponsor(ctx context.Context, sponsorID string, trigger syncer.Trigger) ([]task.Task, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, sponsorID)
	f.mu.Unlock()
	if err := f.fail[sponsorID]; err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeSyncer) synced() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type staticSponsors []string

func (s staticSponsors) Sponsors() []string { return append([]string(nil), s...) }

func TestTickSyncsEverySponsorInSnapshot(t *testing.T) {
	fs := &fakeSyncer{}
	s := New(Config{Enabled: true}, fs, staticSponsors{"abc", "xyz"}, logx.Nop())

	s.tick(context.Background())

	got := fs.synced()
	if len(got) != 2 || got[0] != "abc" || got[1] != "xyz" {
		t.Fatalf("synced = %v, want [abc xyz]", got)
	}
}

func TestTickIsolatesPerSponsorFailures(t *testing.T) {
	fs := &fakeSyncer{fail: map[string]error{"abc": errors.New("salesforce down")}}
	s := New(Config{Enabled: true}, fs, staticSponsors{"abc", "xyz"}, logx.Nop())

	s.tick(context.Background())

	got := fs.synced()
	if len(got) != 2 {
		t.Fatalf("failure for abc aborted the tick: synced %v", got)
	}
}

func TestTickSkipsWhenPreviousStillRunning(t *testing.T) {
	block := make(chan struct{})
	fs := &fakeSyncer{block: block}
	s := New(Config{Enabled: true}, fs, staticSponsors{"abc"}, logx.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.tick(context.Background())
	}()

	// Wait until the first tick holds the guard.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.tmu.Lock()
		held := s.inflight
		s.tmu.Unlock()
		if held {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.tick(context.Background()) // must return immediately, not double-fire
	close(block)
	wg.Wait()

	if got := fs.synced(); len(got) != 1 {
		t.Fatalf("overlapping tick double-fired: %v", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	fs := &fakeSyncer{}
	s := New(Config{Enabled: true, Interval: time.Hour}, fs, staticSponsors{"abc"}, logx.Nop())

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // idempotent

	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()
	if !running {
		t.Fatalf("expected cron runner after Start")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	s.Stop(stopCtx) // idempotent

	s.mu.Lock()
	stopped := s.c == nil
	s.mu.Unlock()
	if !stopped {
		t.Fatalf("cron runner not released after Stop")
	}
}

func TestApplyTogglesEnabled(t *testing.T) {
	fs := &fakeSyncer{}
	s := New(Config{Enabled: false, Interval: time.Hour}, fs, staticSponsors{}, logx.Nop())
	ctx := context.Background()

	s.Apply(ctx, Config{Enabled: true, Interval: time.Hour})
	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()
	if !running {
		t.Fatalf("Apply(enabled) did not start the service")
	}

	s.Apply(ctx, Config{Enabled: false, Interval: time.Hour})
	s.mu.Lock()
	stopped := s.c == nil
	s.mu.Unlock()
	if !stopped {
		t.Fatalf("Apply(disabled) did not stop the service")
	}
}

func TestDisabledServiceDoesNotStart(t *testing.T) {
	s := New(Config{Enabled: false}, &fakeSyncer{}, staticSponsors{}, logx.Nop())
	s.Start(context.Background())
	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()
	if running {
		t.Fatalf("disabled service started its cron runner")
	}
}
