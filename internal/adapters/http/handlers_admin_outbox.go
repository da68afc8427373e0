package web

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gymroster/internal/domain/outbox"
)

const (
	defaultOutboxLimit = 50
	maxOutboxLimit     = 200
)

// outboxJSON is an outbox entry as the admin API shows it. The payload
// stays server side.
func outboxJSON(e outbox.Entry) map[string]any {
	out := map[string]any{
		"id":           e.ID,
		"action_type":  e.ActionType,
		"status":       e.Status,
		"attempts":     e.Attempts,
		"max_attempts": e.MaxAttempts,
		"created_at":   e.CreatedAt.UTC().Format(time.RFC3339),
		"error":        e.ErrorMessage,
	}
	if !e.LastAttemptedAt.IsZero() {
		out["last_attempted_at"] = e.LastAttemptedAt.UTC().Format(time.RFC3339)
	}
	if p, err := e.EmailPayload(); err == nil {
		out["to"] = p.To
		out["kind"] = p.Kind
	}
	return out
}

// handleListOutbox lists failed entries, or pending ones with ?status=pending.
func (s *Server) handleListOutbox(w http.ResponseWriter, r *http.Request) {
	limit := defaultOutboxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Limite non valido")
			return
		}
		limit = min(n, maxOutboxLimit)
	}

	var entries []outbox.Entry
	var err error
	switch r.URL.Query().Get("status") {
	case "", outbox.StatusFailed:
		entries, err = s.outbox.ListFailed(r.Context(), limit)
	case outbox.StatusPending:
		entries, err = s.outbox.ListPending(r.Context(), limit)
	default:
		writeError(w, http.StatusBadRequest, "Stato non valido")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	list := make([]map[string]any, len(entries))
	for i, e := range entries {
		list[i] = outboxJSON(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "entries": list})
}

func (s *Server) handleRetryOutbox(w http.ResponseWriter, r *http.Request) {
	entry, err := s.outbox.RetryEntry(r.Context(), r.PathValue("id"))
	if s.outboxFailed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "entries": []map[string]any{outboxJSON(entry)}})
}

func (s *Server) handleAbandonOutbox(w http.ResponseWriter, r *http.Request) {
	if s.outboxFailed(w, s.outbox.AbandonEntry(r.Context(), r.PathValue("id"))) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "Invio annullato"})
}

// outboxFailed writes the response for a failed outbox action and reports
// whether it did.
func (s *Server) outboxFailed(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "Invio non trovato")
	case errors.Is(err, outbox.ErrNotFailed), errors.Is(err, outbox.ErrAlreadyDone):
		writeError(w, http.StatusConflict, err.Error())
	default:
		internalError(w, err)
	}
	return true
}
