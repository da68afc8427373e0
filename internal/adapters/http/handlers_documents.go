package web

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"gymroster/internal/adapters/storage/documents"
	"gymroster/internal/application/orchestrators"
)

// maxUploadBody leaves room for the multipart framing around a MaxSize file.
const maxUploadBody = documents.MaxSize + 1<<20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.upload("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "File troppo grande")
			return
		}
		writeError(w, http.StatusBadRequest, "Nessun file inviato")
		return
	}
	defer file.Close()

	name, err := orchestrators.ExecuteUploadDocument(r.Context(), orchestrators.UploadDocumentInput{
		MemberID: r.PathValue("user_id"),
		Filename: header.Filename,
		Content:  file,
	}, orchestrators.UploadDocumentDeps{
		MemberStore: s.stores.MemberStore,
		Documents:   s.stores.Documents,
		Outbox:      s.stores.OutboxStore,
		GenerateID:  s.generateID,
		Now:         s.now,
	})
	switch {
	case errors.Is(err, orchestrators.ErrNoFilename), errors.Is(err, documents.ErrEmptyName):
		writeError(w, http.StatusBadRequest, "File senza nome")
		return
	case errors.Is(err, orchestrators.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "Utente non trovato")
		return
	case errors.Is(err, documents.ErrTooLarge):
		s.metrics.upload("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "File troppo grande")
		return
	case err != nil:
		s.metrics.upload("failed")
		slog.Error("document_upload_failed", "member_id", r.PathValue("user_id"), "error", err)
		writeError(w, http.StatusInternalServerError, "Errore salvataggio file")
		return
	}
	s.metrics.upload("stored")
	slog.Info("document_uploaded", "member_id", r.PathValue("user_id"), "document", name, "size", header.Size)
	writeOK(w, "PDF caricato e email inviata")
}

// handleScheda sends the logged-in member their document. Missing
// documents are reported with status 200, as clients expect.
func (s *Server) handleScheda(w http.ResponseWriter, r *http.Request) {
	sess, ok := memberSession(w, r)
	if !ok {
		return
	}
	m, err := s.stores.MemberStore.GetByID(r.Context(), sess.Subject)
	if err != nil || !m.HasDocument() {
		writeError(w, http.StatusOK, "Nessun file disponibile")
		return
	}

	rc, err := s.stores.Documents.Open(r.Context(), m.DocumentPath)
	if errors.Is(err, documents.ErrNotFound) {
		writeError(w, http.StatusOK, "File non trovato sul server")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(m.DocumentPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": m.DocumentPath}))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("document_send_interrupted", "member_id", m.ID, "error", err)
	}
}
