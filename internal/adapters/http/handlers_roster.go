package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	courserowStore "gymroster/internal/adapters/storage/courserow"
	"gymroster/internal/application/orchestrators"
	"gymroster/internal/domain/month"
	"gymroster/internal/domain/roster"
	"gymroster/internal/domain/totals"
)

// rowJSON is a stored row as the API returns it. id is the id of the
// member owning the row's email, or "".
type rowJSON struct {
	roster.Row
	RowIndex int    `json:"row_index"`
	ID       string `json:"id"`
}

// inboundRow accepts rows sent back with their row_index and id, in
// whatever JSON type the client used. Both are ignored.
type inboundRow struct {
	roster.Row
	RowIndex json.RawMessage `json:"row_index"`
	ID       json.RawMessage `json:"id"`
}

func rowsJSON(records []courserowStore.Record) []rowJSON {
	out := make([]rowJSON, len(records))
	for i, rec := range records {
		row := rec.Row
		row.RemoteID = ""
		out[i] = rowJSON{Row: row, RowIndex: rec.Index, ID: rec.MemberID}
	}
	return out
}

// requestKey reads the course path value and the month, defaulting the month.
func requestKey(r *http.Request, monthKey string) roster.Key {
	key := roster.Key{Course: strings.TrimSpace(r.PathValue("course")), Month: strings.TrimSpace(monthKey)}
	if key.Month == "" {
		key.Month = month.DefaultKey
	}
	return key
}

func (s *Server) handleGetCourseData(w http.ResponseWriter, r *http.Request) {
	key := requestKey(r, r.URL.Query().Get("mese"))
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Corso non valido")
		return
	}
	records, err := s.stores.RowStore.List(r.Context(), key)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rows": rowsJSON(records)})
}

type saveRowsRequest struct {
	Rows json.RawMessage `json:"rows"`
	Mese string          `json:"mese"`
}

func (s *Server) handleSaveCourseData(w http.ResponseWriter, r *http.Request) {
	var req saveRowsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Formato dati non valido")
		return
	}
	var in []inboundRow
	if !strings.HasPrefix(strings.TrimSpace(string(req.Rows)), "[") || json.Unmarshal(req.Rows, &in) != nil {
		writeError(w, http.StatusBadRequest, "Formato dati non valido")
		return
	}
	rows := make([]roster.Row, len(in))
	for i, row := range in {
		rows[i] = row.Row
	}

	key := requestKey(r, req.Mese)
	err := orchestrators.ExecuteSaveCourseRows(r.Context(), orchestrators.SaveCourseRowsInput{
		Course: key.Course,
		Month:  key.Month,
		Rows:   rows,
	}, orchestrators.SaveCourseRowsDeps{RowStore: s.stores.RowStore, Months: s.opts.Months})
	if errors.Is(err, roster.ErrEmptyCourse) {
		writeError(w, http.StatusBadRequest, "Corso non valido")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	s.metrics.commit(key.Course)

	records, err := s.stores.RowStore.List(r.Context(), key)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Dati salvati correttamente",
		"rows":    rowsJSON(records),
	})
}

type singleRowRequest struct {
	Row  *inboundRow `json:"row"`
	Mese string      `json:"mese"`
}

func (s *Server) handleCreateSingleRow(w http.ResponseWriter, r *http.Request) {
	var req singleRowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Formato dati non valido")
		return
	}
	if req.Row == nil {
		writeError(w, http.StatusBadRequest, "Nessuna riga inviata")
		return
	}

	key := requestKey(r, req.Mese)
	res, err := orchestrators.ExecuteCreateSingleRow(r.Context(), orchestrators.CreateSingleRowInput{
		Course: key.Course,
		Month:  key.Month,
		Row:    req.Row.Row,
	}, orchestrators.CreateSingleRowDeps{
		MemberStore: s.stores.MemberStore,
		RowStore:    s.stores.RowStore,
		GenerateID:  s.generateID,
		Now:         s.now,
	})
	switch {
	case errors.Is(err, orchestrators.ErrMissingEmail):
		writeError(w, http.StatusBadRequest, "Email mancante")
		return
	case errors.Is(err, roster.ErrEmptyCourse):
		writeError(w, http.StatusBadRequest, "Corso non valido")
		return
	case err != nil:
		internalError(w, err)
		return
	}
	s.metrics.rowCreated()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"message":   "Riga salvata correttamente",
		"user_id":   res.MemberID,
		"row_index": res.RowIndex,
	})
}

// totalsJSON renders both totals as JSON numbers.
func totalsJSON(t totals.Totals) map[string]json.Number {
	return map[string]json.Number{
		"total_cassa":      json.Number(t.Cash.String()),
		"total_istruttore": json.Number(t.Instructor.String()),
	}
}

func (s *Server) handleGetTotals(w http.ResponseWriter, r *http.Request) {
	key := requestKey(r, r.URL.Query().Get("mese"))
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Corso non valido")
		return
	}
	t, err := s.stores.TotalsStore.Get(r.Context(), key.Course, key.Month)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "totals": totalsJSON(t)})
}

// saveTotalsRequest accepts each total as a JSON number or numeric string.
// An absent total is left unchanged.
type saveTotalsRequest struct {
	Mese       string           `json:"mese"`
	Cash       *decimal.Decimal `json:"total_cassa"`
	Instructor *decimal.Decimal `json:"total_istruttore"`
}

func (s *Server) handleSaveTotals(w http.ResponseWriter, r *http.Request) {
	var req saveTotalsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Totali non validi")
		return
	}
	key := requestKey(r, req.Mese)
	t, err := orchestrators.ExecuteSaveTotals(r.Context(), orchestrators.SaveTotalsInput{
		Course: key.Course,
		Month:  key.Month,
		Patch:  totals.Patch{Cash: req.Cash, Instructor: req.Instructor},
	}, s.stores.TotalsStore)
	if errors.Is(err, roster.ErrEmptyCourse) {
		writeError(w, http.StatusBadRequest, "Corso non valido")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Totali salvati",
		"totals":  totalsJSON(t),
	})
}

type reminderRequest struct {
	Emails []string `json:"emails"`
	Mese   string   `json:"mese"`
}

func (s *Server) handlePaymentReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Dati mancanti")
		return
	}
	res, err := orchestrators.ExecuteSendPaymentReminder(r.Context(), orchestrators.SendPaymentReminderInput{
		Month:  req.Mese,
		Emails: req.Emails,
	}, orchestrators.SendPaymentReminderDeps{
		Outbox:     s.stores.OutboxStore,
		GenerateID: s.generateID,
		Now:        s.now,
	})
	if errors.Is(err, orchestrators.ErrMissingData) {
		writeError(w, http.StatusBadRequest, "Dati mancanti")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	s.metrics.reminder(len(res.Sent), len(res.Failed))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sent":    res.Sent,
		"failed":  res.Failed,
		"message": res.Message,
	})
}
