package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jpalmerr/conflux"
)

// registerRequest is the body of POST /api/healthcheck/register.
type registerRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	Method          string `json:"method"`
	IntervalSeconds int    `json:"intervalSeconds"`
}

// eventRequest is the body of POST /api/events. Provider payloads are
// expected to be translated into this shape before they reach conflux.
type eventRequest struct {
	Source     string     `json:"source"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Repository string     `json:"repository"`
	Sender     string     `json:"sender"`
	Timestamp  *time.Time `json:"timestamp"`
}

type probeResponse struct {
	CheckID    string    `json:"checkId"`
	CheckName  string    `json:"checkName"`
	URL        string    `json:"url"`
	Outcome    string    `json:"outcome"`
	StatusCode int       `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latencyMs"`
	CheckedAt  time.Time `json:"checkedAt"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hc, err := s.engine.Register(r.Context(), conflux.HealthCheck{
		ID:              req.ID,
		Name:            req.Name,
		URL:             req.URL,
		Method:          req.Method,
		IntervalSeconds: req.IntervalSeconds,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hc)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListSpecs())
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unregister(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RunCheck(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := probeResponse{
		CheckID:    res.CheckID,
		CheckName:  res.CheckName,
		URL:        res.URL,
		Outcome:    string(res.Outcome),
		StatusCode: res.StatusCode,
		LatencyMs:  res.Latency.Milliseconds(),
		CheckedAt:  res.CheckedAt,
	}
	if res.Error != nil {
		resp.Error = res.Error.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := s.engine.ListNotifications(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if ns == nil {
		ns = []conflux.Notification{}
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, ns)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteNotification(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearAll(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := conflux.Event{
		Source:     req.Source,
		Title:      req.Title,
		Message:    req.Message,
		Repository: req.Repository,
		Sender:     req.Sender,
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}

	n, err := s.engine.RecordExternalEvent(r.Context(), ev)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// writeEngineError maps engine errors to status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conflux.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, conflux.ErrInvalidHealthCheck), errors.Is(err, conflux.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conflux.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
