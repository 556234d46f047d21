package syncer

import (
	"context"
	"strings"
	"sync"
	"time"

	"sponsorsync/internal/eventbus"
	"sponsorsync/internal/source"
	"sponsorsync/internal/store"
	"sponsorsync/internal/task"
	logx "sponsorsync/pkg/logx"
)

// Trigger records what initiated a sync run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// RunInfo is the event payload published after every sync attempt. The audit
// recorder persists it; anything else on the bus may observe it.
type RunInfo struct {
	SponsorID string        `json:"sponsor_id"`
	Trigger   Trigger       `json:"trigger"`
	Tasks     int           `json:"tasks"`
	Took      time.Duration `json:"took"`
	Error     string        `json:"error,omitempty"`
}

// Engine orchestrates one sponsor's sync: fetch from every adapter, then
// swap the sponsor's partition in the store atomically.
type Engine struct {
	store    *store.Store
	adapters []source.Adapter
	log      logx.Logger
	bus      eventbus.Bus

	// fetchTimeout bounds the whole fetch phase of one sync. Zero disables.
	fetchTimeout time.Duration

	// Per-sponsor locks linearize overlapping syncs for the same sponsor
	// (an on-demand sync racing a scheduled tick). Different sponsors
	// proceed concurrently; the store serializes only its own critical
	// sections.
	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func New(st *store.Store, adapters []source.Adapter, log logx.Logger, bus eventbus.Bus, fetchTimeout time.Duration) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:        st,
		adapters:     adapters,
		log:          log,
		bus:          bus,
		fetchTimeout: fetchTimeout,
		inflight:     map[string]*sync.Mutex{},
	}
}

// SyncSponsor fetches from every configured adapter in order, concatenates
// the results (adapter order, then within-adapter order), and replaces the
// sponsor's stored records.
//
// All-or-nothing: if any adapter fails, the store is left exactly as it was
// and a SourceError is returned. A partial overwrite would silently drop
// known-good records from sources that succeeded on a prior sync.
//
// The sponsor is registered for periodic refresh before fetching, so a
// failed manual sync is still retried on the next scheduled tick.
func (e *Engine) SyncSponsor(ctx context.Context, sponsorID string, trigger Trigger) ([]task.Task, error) {
	sponsorID = strings.TrimSpace(sponsorID)
	if sponsorID == "" {
		return nil, ErrEmptySponsorID
	}

	lock := e.sponsorLock(sponsorID)
	lock.Lock()
	defer lock.Unlock()

	e.store.Register(sponsorID)

	start := time.Now()
	merged, err := e.fetchAll(ctx, sponsorID)
	if err != nil {
		e.log.Warn("sync failed",
			logx.String("sponsor", sponsorID),
			logx.String("trigger", string(trigger)),
			logx.Err(err),
		)
		e.publish(eventbus.TypeSyncFailed, RunInfo{
			SponsorID: sponsorID,
			Trigger:   trigger,
			Took:      time.Since(start),
			Error:     err.Error(),
		})
		return nil, err
	}

	e.store.Replace(sponsorID, merged)

	took := time.Since(start)
	e.log.Info("sync completed",
		logx.String("sponsor", sponsorID),
		logx.String("trigger", string(trigger)),
		logx.Int("tasks", len(merged)),
		logx.Duration("took", took),
	)
	e.publish(eventbus.TypeSyncCompleted, RunInfo{
		SponsorID: sponsorID,
		Trigger:   trigger,
		Tasks:     len(merged),
		Took:      took,
	})
	return merged, nil
}

// fetchAll gathers every adapter's records without touching the store, so no
// store lock is held across (potentially slow) source I/O.
func (e *Engine) fetchAll(ctx context.Context, sponsorID string) ([]task.Task, error) {
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	var merged []task.Task
	for _, a := range e.adapters {
		recs, err := a.Fetch(ctx, sponsorID)
		if err != nil {
			return nil, &SourceError{Source: a.Name(), Err: err}
		}
		merged = append(merged, recs...)
	}
	return merged, nil
}

func (e *Engine) sponsorLock(sponsorID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.inflight[sponsorID]
	if !ok {
		l = &sync.Mutex{}
		e.inflight[sponsorID] = l
	}
	return l
}

func (e *Engine) publish(typ string, info RunInfo) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: info})
}
