package console

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"gymroster/internal/adapters/remote"
	"gymroster/internal/application/aggregates"
	"gymroster/internal/application/grid"
	"gymroster/internal/application/reconcile"
	"gymroster/internal/domain/roster"
)

// Form fields outside the grid.
const (
	fieldMonth            = "mese"
	fieldTargetMonth      = "to_month"
	fieldInstructorAmount = "instructor_amount"
)

// headerAutosave marks a draft save sent by the course page script.
const headerAutosave = "X-Roster-Autosave"

// maxFormMemory is how much of a multipart form is held in memory.
const maxFormMemory = 32 << 20

func coursePath(course string) string {
	return "/courses/" + url.PathEscape(course)
}

func backToCourse(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, coursePath(r.PathValue("course")), http.StatusSeeOther)
}

// failureText reports a store failure: prefix and the store's message, or
// prefix alone when the store was never reached.
func failureText(prefix string, err error) string {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return prefix + ": " + remote.UserMessage(err, "unknown")
	}
	return prefix
}

// handleCourse shows a course month. The open view is reused while it
// matches; a new course or month reopens it.
func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request, ws *workspace) {
	ctx := r.Context()
	course := r.PathValue("course")

	snap := ws.ctrl.Snapshot()
	if snap.State != reconcile.StateIdle && snap.Key.Course != course {
		ws.ctrl.Close()
		snap = ws.ctrl.Snapshot()
	}
	if m := r.URL.Query().Get(fieldMonth); m != "" && m != ws.ctrl.Month() {
		if err := ws.ctrl.ChangeMonth(ctx, m); err != nil {
			loadFailed(ws, err)
		}
		snap = ws.ctrl.Snapshot()
	}
	if snap.State != reconcile.StateReady || snap.Key.Course != course || snap.Key.Month != ws.ctrl.Month() {
		if err := ws.ctrl.OpenCourse(ctx, course); err != nil {
			if errors.Is(err, roster.ErrEmptyCourse) {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			loadFailed(ws, err)
		}
		snap = ws.ctrl.Snapshot()
	}

	table, err := grid.Render(snap.Rows, snap.Kind).WithBase(coursePath(course)).HTML()
	if err != nil {
		slog.Error("grid_render_failed", "course", course, "error", err)
		http.Error(w, "Render error", http.StatusInternalServerError)
		return
	}
	data := map[string]any{
		"Course":   course,
		"Base":     template.URL(coursePath(course)),
		"Month":    snap.Key.Month,
		"Months":   snap.Months,
		"Table":    table,
		"Source":   string(snap.Source),
		"Document": snap.Kind == roster.KindDocument,
	}
	if snap.MonthlyTotalShown {
		data["MonthlyTotal"] = aggregates.FormatEuro(snap.MonthlyTotal)
	}
	if snap.InstructorTotalShown {
		data["InstructorTotal"] = aggregates.FormatEuro(snap.InstructorTotal)
	}
	s.render(w, r, http.StatusOK, "course.html", data, ws)
}

func loadFailed(ws *workspace, err error) {
	if errors.Is(err, reconcile.ErrSuperseded) {
		return
	}
	ws.addFlash(true, failureText("Errore caricamento dati", err))
}

// applyForm records the grid as submitted, as an edit of the view the
// form was rendered for, and returns that view's key. A grid equal to the
// open view is not an edit and writes no draft.
func applyForm(ctx context.Context, r *http.Request, ws *workspace) (roster.Key, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return roster.Key{}, fmt.Errorf("parsing form: %w", err)
	}
	key := roster.Key{Course: r.PathValue("course"), Month: r.PostForm.Get(fieldMonth)}
	if _, ok := r.PostForm[grid.FieldRow]; !ok {
		return key, nil
	}
	rows := grid.Collect(r.PostForm)
	snap := ws.ctrl.Snapshot()
	if snap.State == reconcile.StateReady && snap.Key == key && sameRows(rows, snap.Rows) {
		return key, nil
	}
	if err := ws.ctrl.Edit(ctx, key, rows); err != nil {
		return key, err
	}
	return key, nil
}

// sameRows reports whether collected matches the view rows as the grid
// would submit them.
func sameRows(collected, view []roster.Row) bool {
	collected = roster.Normalize(collected)
	if len(collected) != len(view) {
		return false
	}
	for i := range view {
		if collected[i] != view[i].Trimmed() {
			return false
		}
	}
	return true
}

// viewFailed reports an action that could not touch the view.
func viewFailed(ws *workspace, err error) {
	switch {
	case errors.Is(err, reconcile.ErrNoView), errors.Is(err, reconcile.ErrStaleView):
		ws.addFlash(true, "Il corso è cambiato: ricarica la pagina e riprova")
	case errors.Is(err, reconcile.ErrNoSuchRow):
		ws.addFlash(true, "Riga non trovata")
	default:
		slog.Error("console_action_failed", "error", err)
		ws.addFlash(true, "Errore salvataggio bozza")
	}
}

func rowIndex(r *http.Request) int {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return -1
	}
	return i
}

// handleEdit records the grid. Background saves from the course page
// script get a bare status instead of the page.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, ws *workspace) {
	_, err := applyForm(r.Context(), r, ws)
	if r.Header.Get(headerAutosave) != "" {
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, reconcile.ErrNoView), errors.Is(err, reconcile.ErrStaleView):
			http.Error(w, "stale view", http.StatusConflict)
		default:
			slog.Error("console_autosave_failed", "error", err)
			http.Error(w, "draft not saved", http.StatusInternalServerError)
		}
		return
	}
	if err != nil {
		viewFailed(ws, err)
	}
	backToCourse(w, r)
}

// handleChangeMonth records the grid, then reopens the course under the
// chosen month.
func (s *Server) handleChangeMonth(w http.ResponseWriter, r *http.Request, ws *workspace) {
	if _, err := applyForm(r.Context(), r, ws); err != nil {
		viewFailed(ws, err)
	}
	if err := ws.ctrl.ChangeMonth(r.Context(), r.PostForm.Get(fieldTargetMonth)); err != nil {
		loadFailed(ws, err)
	}
	backToCourse(w, r)
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request, ws *workspace) {
	key, err := applyForm(r.Context(), r, ws)
	if err == nil {
		err = ws.ctrl.AddRow(r.Context(), key)
	}
	if err != nil {
		viewFailed(ws, err)
	}
	backToCourse(w, r)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request, ws *workspace) {
	key, err := applyForm(r.Context(), r, ws)
	if err == nil {
		err = ws.ctrl.DeleteRow(r.Context(), key, rowIndex(r))
	}
	if err != nil {
		viewFailed(ws, err)
	}
	backToCourse(w, r)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, ws *workspace) {
	defer backToCourse(w, r)
	key, err := applyForm(r.Context(), r, ws)
	if err != nil {
		viewFailed(ws, err)
		return
	}

	index := rowIndex(r)
	var filename string
	file, header, err := r.FormFile(grid.FileField(index))
	if err == nil {
		defer file.Close()
		filename = header.Filename
	}
	if filename == "" {
		file = nil
	}

	err = ws.ctrl.UploadDocument(r.Context(), key, index, filename, file)
	switch {
	case err == nil:
		ws.addFlash(false, "File caricato correttamente")
	case errors.Is(err, reconcile.ErrNoFile):
		ws.addFlash(true, "Seleziona un file da caricare")
	case errors.Is(err, reconcile.ErrRowCreate):
		ws.addFlash(true, "Errore salvataggio riga prima del caricamento file")
	case errors.Is(err, reconcile.ErrNoView), errors.Is(err, reconcile.ErrStaleView), errors.Is(err, reconcile.ErrNoSuchRow):
		viewFailed(ws, err)
	default:
		ws.addFlash(true, failureText("Errore caricamento file", err))
	}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, ws *workspace) {
	defer backToCourse(w, r)
	key, err := applyForm(r.Context(), r, ws)
	if err != nil {
		viewFailed(ws, err)
		return
	}
	err = ws.ctrl.SaveTable(r.Context(), key)
	switch {
	case err == nil:
		ws.addFlash(false, "Dati salvati con successo!")
	case errors.Is(err, reconcile.ErrNoView), errors.Is(err, reconcile.ErrStaleView):
		viewFailed(ws, err)
	default:
		ws.addFlash(true, failureText("Errore salvataggio dati", err))
	}
}

func (s *Server) handleMonthlyTotal(w http.ResponseWriter, r *http.Request, ws *workspace) {
	key, err := applyForm(r.Context(), r, ws)
	if err == nil {
		_, err = ws.ctrl.ComputeMonthlyTotal(r.Context(), key)
	}
	if err != nil {
		viewFailed(ws, err)
	}
	backToCourse(w, r)
}

func (s *Server) handleInstructorAmount(w http.ResponseWriter, r *http.Request, ws *workspace) {
	defer backToCourse(w, r)
	key, err := applyForm(r.Context(), r, ws)
	if err != nil {
		viewFailed(ws, err)
		return
	}
	_, err = ws.ctrl.AddInstructorAmount(r.Context(), key, r.PostForm.Get(fieldInstructorAmount))
	switch {
	case errors.Is(err, aggregates.ErrInvalidAmount):
		ws.addFlash(true, "Inserisci un valore numerico valido")
	case err != nil:
		viewFailed(ws, err)
	}
}

func (s *Server) handleShowInstructorTotal(w http.ResponseWriter, r *http.Request, ws *workspace) {
	key, err := applyForm(r.Context(), r, ws)
	if err == nil {
		_, err = ws.ctrl.ShowInstructorTotal(key)
	}
	if err != nil {
		viewFailed(ws, err)
	}
	backToCourse(w, r)
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request, ws *workspace) {
	defer backToCourse(w, r)
	key, err := applyForm(r.Context(), r, ws)
	if err != nil {
		viewFailed(ws, err)
		return
	}
	res, err := ws.ctrl.SendPaymentReminder(r.Context(), key)
	switch {
	case err == nil:
		ws.addFlash(false, fmt.Sprintf("Mail inviate correttamente: %d", len(res.Sent)))
	case errors.Is(err, reconcile.ErrAllPaid):
		ws.addFlash(false, "Tutti hanno già pagato!")
	case errors.Is(err, reconcile.ErrNoView), errors.Is(err, reconcile.ErrStaleView):
		viewFailed(ws, err)
	default:
		ws.addFlash(true, failureText("Errore invio mail", err))
	}
}
