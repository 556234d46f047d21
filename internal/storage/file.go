package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "sponsorsync/pkg/logx"
)

// fileStore is a dependency-free ledger backend.
//
// Runs are appended to <prefix>.runs.jsonl (append-only JSON Lines).
// Reading recent runs scans the file; the ledger is small and read rarely.
type fileStore struct {
	log logx.Logger

	mu       sync.Mutex
	runsPath string
	runsFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	runsPath := filepath.Join(dir, base) + ".runs.jsonl"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, runsPath: runsPath, runsFile: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil
	}
	err := s.runsFile.Close()
	s.runsFile = nil
	return err
}

func (s *fileStore) AppendSyncRun(ctx context.Context, run SyncRun) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("run ledger closed")
	}
	return json.NewEncoder(s.runsFile).Encode(run)
}

func (s *fileStore) RecentSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	path := s.runsPath
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	// Keep a sliding window of the last `limit` lines.
	out := make([]SyncRun, 0, limit)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var run SyncRun
		if err := json.Unmarshal(sc.Bytes(), &run); err != nil {
			continue
		}
		if len(out) == limit {
			copy(out, out[1:])
			out = out[:limit-1]
		}
		out = append(out, run)
	}
	return out, sc.Err()
}
