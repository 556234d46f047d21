package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sponsorsync/internal/store"
	"sponsorsync/internal/syncer"
	"sponsorsync/internal/task"
	logx "sponsorsync/pkg/logx"
)

// apiKeyHeader carries the shared secret on every task endpoint.
const apiKeyHeader = "X-API-KEY"

// Config controls the task API server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - Binding to a non-loopback address requires an API key, or an explicit
//     AllowInsecure.
type Config struct {
	Addr          string
	APIKey        string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// SyncRatePerSec bounds manual sync triggers. Zero means 5/s.
	SyncRatePerSec int
}

// SyncTrigger is the slice of the sync engine the transport needs.
type SyncTrigger interface {
	SyncSponsor(ctx context.Context, sponsorID string, trigger syncer.Trigger) ([]task.Task, error)
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	store  *store.Store
	engine SyncTrigger

	ln       net.Listener
	srv      *http.Server
	stopDone chan struct{}

	limiter *rate.Limiter
}

func New(cfg Config, st *store.Store, engine SyncTrigger, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: st, engine: engine, log: log}
}

// Addr returns the bound listen address, or "" when not running. Useful for
// tests binding to port 0.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg and restarts the server if needed.
// Safe to call during hot-reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	if !running {
		s.Start(ctx)
		return
	}
	if needsRestart(prev, cfg) {
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func needsRestart(a, b Config) bool {
	if a.Addr != b.Addr || a.APIKey != b.APIKey || a.AllowInsecure != b.AllowInsecure {
		return true
	}
	if a.SyncRatePerSec != b.SyncRatePerSec {
		return true
	}
	// Timeouts affect server behavior; easiest is restart.
	return a.ReadTimeout != b.ReadTimeout || a.WriteTimeout != b.WriteTimeout || a.IdleTimeout != b.IdleTimeout
}

func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.srv != nil {
			s.mu.Unlock()
			return
		}
		// If stop is in progress, wait for it (avoid double listen).
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				// loop
			case <-ctx.Done():
				return
			}
			continue
		}
		cur := s.cfg
		s.mu.Unlock()

		addr := strings.TrimSpace(cur.Addr)
		if addr == "" {
			addr = "127.0.0.1:8080"
		}

		// Safety: prevent accidental public exposure without auth.
		if !cur.AllowInsecure && cur.APIKey == "" && !isLoopbackAddr(addr) {
			s.log.Error("api refused to start: non-loopback addr requires api_key or allow_insecure",
				logx.String("addr", addr),
			)
			return
		}
		if cur.AllowInsecure && cur.APIKey == "" && !isLoopbackAddr(addr) {
			s.log.Warn("api running without key on non-loopback addr (insecure)", logx.String("addr", addr))
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.log.Error("api listen failed", logx.String("addr", addr), logx.Err(err))
			return
		}

		rps := cur.SyncRatePerSec
		if rps <= 0 {
			rps = 5
		}
		limiter := rate.NewLimiter(rate.Limit(rps), rps)

		srv := &http.Server{
			Handler:      s.routes(cur.APIKey),
			ReadTimeout:  cur.ReadTimeout,
			WriteTimeout: cur.WriteTimeout,
			IdleTimeout:  cur.IdleTimeout,
		}

		s.mu.Lock()
		s.ln = ln
		s.srv = srv
		s.limiter = limiter
		s.mu.Unlock()

		go func() {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("api server stopped with error", logx.Err(err))
			}
		}()

		s.log.Info("api started",
			logx.String("addr", ln.Addr().String()),
			logx.Bool("key_set", cur.APIKey != ""),
		)
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	// If a stop is already in progress, wait for it.
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
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.limiter = nil
	s.mu.Unlock()

	shCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := srv.Shutdown(shCtx)
	cancel()
	if err != nil {
		_ = srv.Close()
	}

	s.mu.Lock()
	s.stopDone = nil
	s.mu.Unlock()
	close(done)
	s.log.Info("api stopped")
}

// withAuth requires the shared API key on a handler. Comparison is constant
// time so the key can't be probed byte by byte.
func (s *Service) withAuth(key string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key == "" {
			h(w, r)
			return
		}
		got := r.Header.Get(apiKeyHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing api key")
			return
		}
		h(w, r)
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
