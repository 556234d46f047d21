package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sponsorsync/internal/store"
	"sponsorsync/internal/syncer"
	"sponsorsync/internal/task"
	logx "sponsorsync/pkg/logx"
)

func (s *Service) routes(apiKey string) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc { return s.withAuth(apiKey, h) }

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/sync-tasks", auth(s.handleSync))
	mux.HandleFunc("/tasks", auth(s.handleTasks))
	return mux
}

type syncRequest struct {
	SponsorID string `json:"sponsor_id"`
}

type updateRequest struct {
	SponsorID string `json:"sponsor_id"`
	Source    string `json:"source"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"tasks":    s.store.Len(),
		"sponsors": s.store.SponsorCount(),
	})
}

// handleSync triggers an on-demand sync for one sponsor.
//
//	POST /sync-tasks  {"sponsor_id": "..."}
func (s *Service) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	s.mu.Lock()
	limiter := s.limiter
	s.mu.Unlock()
	if limiter != nil && !limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "sync rate limit exceeded")
		return
	}

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.SponsorID) == "" {
		writeError(w, http.StatusBadRequest, "missing sponsor_id")
		return
	}

	tasks, err := s.engine.SyncSponsor(r.Context(), req.SponsorID, syncer.TriggerManual)
	switch {
	case errors.Is(err, syncer.ErrEmptySponsorID):
		writeError(w, http.StatusBadRequest, "missing sponsor_id")
		return
	case syncer.IsSourceError(err):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		s.log.Error("manual sync failed", logx.String("sponsor", req.SponsorID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": taskList(tasks)})
}

// handleTasks serves the stored record set.
//
//	GET   /tasks?sponsor_id=...&status=...
//	PATCH /tasks  {"sponsor_id","source","name","status"}
func (s *Service) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTasks(w, r)
	case http.MethodPatch:
		s.handleUpdateTask(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET or PATCH")
	}
}

func (s *Service) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{
		SponsorID: q.Get("sponsor_id"),
		Status:    q.Get("status"),
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": taskList(s.store.Query(f))})
}

func (s *Service) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.SponsorID) == "" || strings.TrimSpace(req.Source) == "" ||
		strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Status) == "" {
		writeError(w, http.StatusBadRequest, "must include sponsor_id, source, name, and status")
		return
	}
	src, ok := task.ParseSource(req.Source)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid source")
		return
	}

	matched, err := s.store.UpdateStatus(req.SponsorID, src, req.Name, req.Status)
	if errors.Is(err, store.ErrNoMatch) {
		writeError(w, http.StatusNotFound, "no matching task found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true, "matched": matched})
}

// taskList keeps the JSON shape stable: an empty result marshals as [].
func taskList(tasks []task.Task) []task.Task {
	if tasks == nil {
		return []task.Task{}
	}
	return tasks
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
