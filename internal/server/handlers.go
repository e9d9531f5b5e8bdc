package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shirushi/internal/apperr"
	"github.com/hyperjump/shirushi/internal/documents"
	"github.com/hyperjump/shirushi/internal/models"
	"github.com/hyperjump/shirushi/internal/storage"
)

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	// Reject oversized uploads up front rather than buffering them first.
	if max := s.config.Upload.MaxFileSize; header.Size > max {
		s.respondServiceError(w, apperr.TooLargef(
			"file size %d exceeds maximum allowed size of %d bytes", header.Size, max))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	s.logger.Debug("upload request",
		zap.String("filename", header.Filename), zap.Int("size", len(data)))
	doc, err := s.documents.Upload(r.Context(), &documents.UploadInput{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resp, err := s.documents.List(r.Context(), offset, limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// handleGetDocumentFile streams the stored file: the converted PDF when one
// exists, else the original upload. PDFs are signature-checked before serving.
func (s *Server) handleGetDocumentFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	path := s.documents.FilePath(doc)
	info, err := os.Stat(path)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "file not found on disk")
		return
	}
	if info.Size() == 0 {
		s.respondError(w, http.StatusInternalServerError, "file is empty")
		return
	}
	if strings.HasSuffix(path, ".pdf") {
		if !validPDFSignature(path) {
			s.respondError(w, http.StatusInternalServerError, "file is not a valid PDF")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
	}
	http.ServeFile(w, r, path)
}

func validPDFSignature(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	header := make([]byte, 5)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return string(header) == "%PDF-"
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.documents.Delete(r.Context(), id); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req models.AnnotationCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := s.annotations.Create(r.Context(), &req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, a.Response())
}

func (s *Server) handleBulkCreateAnnotations(w http.ResponseWriter, r *http.Request) {
	var req models.AnnotationBulkCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	as, err := s.annotations.BulkCreate(r.Context(), &req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	out := make([]*models.AnnotationResponse, len(as))
	for i, a := range as {
		out[i] = a.Response()
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"annotations": out,
		"total":       len(out),
		"document_id": req.DocumentID,
	})
}

func (s *Server) handleGetAnnotation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.annotations.Get(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, a.Response())
}

func (s *Server) handleListAnnotations(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	var filter models.AnnotationFilter
	if v := r.URL.Query().Get("annotation_type"); v != "" {
		t := models.AnnotationType(v)
		filter.Type = &t
	}
	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		filter.Page = &page
	}
	resp, err := s.annotations.List(r.Context(), documentID, &filter)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchAnnotations(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resp, err := s.annotations.SearchContent(r.Context(), documentID, query, limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var upd models.AnnotationUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := s.annotations.Update(r.Context(), id, &upd)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, a.Response())
}

func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete annotation request", zap.String("id", id))
	if err := s.annotations.Delete(r.Context(), id); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	annCount, err := s.storage.CountAnnotations(ctx)
	if err != nil {
		s.logger.Error("status: count annotations failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"documents":   docCount,
		"annotations": annCount,
	}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			resp["search_index_size"] = n
		}
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.UploadDir,
		s.config.Storage.IndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = map[string]interface{}{
		"database_path":     s.config.Storage.DatabasePath,
		"upload_dir":        s.config.Storage.UploadDir,
		"index_path":        s.config.Storage.IndexPath,
		"max_file_size":     s.config.Upload.MaxFileSize,
		"allowed_types":     s.config.Upload.AllowedTypes,
		"conversion":        s.config.Conversion.EnabledOrDefault(),
		"conversion_binary": s.config.Conversion.Binary,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps a classified service error to its HTTP status.
// Unclassified errors are logged and surfaced as a generic internal error.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindInvalidOperation:
		s.respondError(w, http.StatusBadRequest, err.Error())
	case apperr.KindNotFound:
		s.respondError(w, http.StatusNotFound, err.Error())
	case apperr.KindTooLarge:
		s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}
