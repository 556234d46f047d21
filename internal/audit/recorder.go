// Package audit turns sync events from the bus into ledger appends.
package audit

import (
	"context"
	"sync"
	"time"

	"sponsorsync/internal/eventbus"
	"sponsorsync/internal/storage"
	"sponsorsync/internal/syncer"
	logx "sponsorsync/pkg/logx"
)

// Recorder consumes sync.completed / sync.failed events and persists them.
// When storage is disabled the recorder is inert.
type Recorder struct {
	bus   eventbus.Bus
	store storage.Store
	log   logx.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	unsub  func()
	done   chan struct{}
}

func New(bus eventbus.Bus, store storage.Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{bus: bus, store: store, log: log}
}

func (r *Recorder) Start(ctx context.Context) {
	if r.store == nil || r.bus == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe(64)
	done := make(chan struct{})
	r.cancel = cancel
	r.unsub = unsub
	r.done = done

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				r.record(runCtx, ev)
			}
		}
	}()
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	unsub := r.unsub
	done := r.done
	r.cancel, r.unsub, r.done = nil, nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsub != nil {
		unsub()
	}
	if done != nil {
		<-done
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) {
	if ev.Type != eventbus.TypeSyncCompleted && ev.Type != eventbus.TypeSyncFailed {
		return
	}
	info, ok := ev.Data.(syncer.RunInfo)
	if !ok {
		return
	}

	run := storage.SyncRun{
		At:        ev.Time,
		SponsorID: info.SponsorID,
		Trigger:   string(info.Trigger),
		Tasks:     info.Tasks,
		TookMS:    info.Took.Milliseconds(),
		Error:     info.Error,
	}

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.store.AppendSyncRun(wctx, run); err != nil {
		r.log.Warn("sync run not recorded", logx.String("sponsor", info.SponsorID), logx.Err(err))
	}
}
