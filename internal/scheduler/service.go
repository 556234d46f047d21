package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sponsorsync/internal/syncer"
	"sponsorsync/internal/task"
	logx "sponsorsync/pkg/logx"
)

// Syncer is the slice of the sync engine the scheduler needs.
type Syncer interface {
	SyncSponsor(ctx context.Context, sponsorID string, trigger syncer.Trigger) ([]task.Task, error)
}

// SponsorSource yields a point-in-time snapshot of the registered sponsors.
type SponsorSource interface {
	Sponsors() []string
}

type Config struct {
	Enabled  bool
	Interval time.Duration // default 5m
}

// Service re-syncs every registered sponsor at a fixed interval.
//
// Each tick takes its own snapshot of the registered set; sponsors added
// after the snapshot are picked up on the next tick. A failure for one
// sponsor never aborts the rest of the tick, and a tick still running when
// the next fires is not doubled up (the new tick is skipped).
type Service struct {
	mu  sync.Mutex
	cfg Config

	log      logx.Logger
	engine   Syncer
	sponsors SponsorSource

	c         *cron.Cron
	runCtx    context.Context
	runCancel context.CancelFunc
	stopDone  chan struct{}

	// tick overlap guard
	tmu      sync.Mutex
	inflight bool
}

func New(cfg Config, engine Syncer, sponsors SponsorSource, log logx.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, engine: engine, sponsors: sponsors, log: log}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps config at runtime. An interval change restarts the cron runner;
// toggling Enabled starts or stops it.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	s.mu.Lock()
	prev := s.cfg
	running := s.c != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled && running:
		s.Stop(ctx)
	case cfg.Enabled && !running:
		s.Start(ctx)
	case cfg.Enabled && running && prev.Interval != cfg.Interval:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.c != nil {
			s.mu.Unlock()
			return
		}
		// If a stop is in progress, wait for it (prevents double cron runners).
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				// loop and try again
			case <-ctx.Done():
				return
			}
			continue
		}
		cur := s.cfg
		if !cur.Enabled {
			s.mu.Unlock()
			return
		}

		s.runCtx, s.runCancel = context.WithCancel(ctx)
		runCtx := s.runCtx

		c := cron.New()
		spec := fmt.Sprintf("@every %s", cur.Interval)
		if _, err := c.AddFunc(spec, func() { s.tick(runCtx) }); err != nil {
			// Interval was validated by config; this is unreachable with a
			// sane duration, but never start half-wired.
			s.runCancel()
			s.runCtx, s.runCancel = nil, nil
			s.mu.Unlock()
			s.log.Error("schedule registration failed", logx.String("spec", spec), logx.Err(err))
			return
		}
		s.c = c
		s.mu.Unlock()

		c.Start()
		s.log.Info("periodic refresh started", logx.Duration("interval", cur.Interval))
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()

	// Cancel in-flight syncs, then wait for the cron runner to drain.
	if cancel != nil {
		cancel()
	}
	stopCtx := c.Stop()

	go func() {
		<-stopCtx.Done()
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("periodic refresh stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// tick re-syncs every sponsor registered at the time the tick fires.
func (s *Service) tick(ctx context.Context) {
	if !s.tryAcquire() {
		s.log.Warn("refresh tick skipped: previous tick still running")
		return
	}
	defer s.release()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in refresh tick", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	snapshot := s.sponsors.Sponsors()
	if len(snapshot) == 0 {
		return
	}

	start := time.Now()
	failed := 0
	for _, sponsorID := range snapshot {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.engine.SyncSponsor(ctx, sponsorID, syncer.TriggerScheduled); err != nil {
			// Isolate failures: the engine already logged the details.
			failed++
		}
	}
	s.log.Info("refresh tick finished",
		logx.Int("sponsors", len(snapshot)),
		logx.Int("failed", failed),
		logx.Duration("took", time.Since(start)),
	)
}

func (s *Service) tryAcquire() bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *Service) release() {
	s.tmu.Lock()
	s.inflight = false
	s.tmu.Unlock()
}
