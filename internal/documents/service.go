// Package documents implements upload, retrieval, and deletion of documents.
package documents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shirushi/internal/apperr"
	"github.com/hyperjump/shirushi/internal/config"
	"github.com/hyperjump/shirushi/internal/convert"
	"github.com/hyperjump/shirushi/internal/inspect"
	"github.com/hyperjump/shirushi/internal/models"
	"github.com/hyperjump/shirushi/internal/storage"
)

// Forgetter removes a document's annotations from ancillary indexes before
// the document row (and, via cascade, its annotation rows) is deleted.
type Forgetter interface {
	ForgetDocument(ctx context.Context, documentID string)
}

// Service manages uploaded documents and their stored files. Conversion of
// office documents to PDF happens on a background goroutine per upload; a
// failed or timed-out conversion never fails the upload.
type Service struct {
	storage   storage.Storage
	converter *convert.Converter
	forgetter Forgetter
	upload    *config.UploadConfig
	uploadDir string
	logger    *zap.Logger

	conversions sync.WaitGroup
}

// NewService creates a document service. converter may be nil to disable
// conversion; forgetter may be nil when no search index is configured.
func NewService(store storage.Storage, converter *convert.Converter, forgetter Forgetter,
	upload *config.UploadConfig, uploadDir string, logger *zap.Logger) *Service {
	return &Service{
		storage:   store,
		converter: converter,
		forgetter: forgetter,
		upload:    upload,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// UploadInput is one file received from a client.
type UploadInput struct {
	Filename string
	MimeType string // declared by the client; sniffed content wins
	Data     []byte
}

// Upload validates the file, stores it under a unique name, creates the
// document record, and for DOC/DOCX files kicks off the background PDF
// conversion. Returns the stored record; its converted path is filled in
// later if conversion succeeds.
func (s *Service) Upload(ctx context.Context, in *UploadInput) (*models.Document, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, apperr.Validationf("filename cannot be empty")
	}
	if len(in.Data) == 0 {
		return nil, apperr.Validationf("file is empty")
	}
	if int64(len(in.Data)) > s.upload.MaxFileSize {
		return nil, apperr.TooLargef("file size %d exceeds maximum allowed size of %d bytes",
			len(in.Data), s.upload.MaxFileSize)
	}
	mime := inspect.DetectMIME(in.Data, in.MimeType)
	if !inspect.MIMEAllowed(mime, s.upload.AllowedTypes) {
		return nil, apperr.Validationf("unsupported file format: %s", mime)
	}

	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return nil, err
	}
	stored := uuid.NewString() + strings.ToLower(filepath.Ext(in.Filename))
	path := filepath.Join(s.uploadDir, stored)
	if err := os.WriteFile(path, in.Data, 0644); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:               uuid.NewString(),
		Filename:         stored,
		OriginalFilename: in.Filename,
		MimeType:         mime,
		FileSize:         int64(len(in.Data)),
		FilePath:         path,
	}
	if mime == "application/pdf" {
		if n, err := inspect.PDFPageCount(path); err == nil {
			doc.PageCount = &n
		} else {
			s.logger.Warn("page count failed", zap.String("path", path), zap.Error(err))
		}
	}

	if err := s.storage.CreateDocument(ctx, doc); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	if s.converter != nil && s.converter.Supported(mime) {
		s.conversions.Add(1)
		go s.convertInBackground(doc.ID, path, in.Filename)
	}
	return doc, nil
}

// convertInBackground produces the PDF rendition of an office document and
// records its path. Failure is logged and swallowed: the document simply
// stays without a converted path.
func (s *Service) convertInBackground(docID, path, originalFilename string) {
	defer s.conversions.Done()
	ctx := context.Background()
	outPath, err := s.converter.ToPDF(ctx, path, originalFilename)
	if err != nil {
		s.logger.Warn("conversion failed",
			zap.String("document_id", docID),
			zap.String("filename", originalFilename),
			zap.Error(err))
		return
	}
	var pageCount *int
	if n, err := inspect.PDFPageCount(outPath); err == nil {
		pageCount = &n
	}
	if err := s.storage.SetConvertedPath(ctx, docID, outPath, pageCount); err != nil {
		s.logger.Warn("recording converted path failed",
			zap.String("document_id", docID), zap.Error(err))
	}
}

// Wait blocks until in-flight conversions finish. Called on shutdown.
func (s *Service) Wait() {
	s.conversions.Wait()
}

// Get returns document metadata by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.storage.GetDocument(ctx, id)
}

// List returns documents with offset and limit, newest first, plus the total count.
func (s *Service) List(ctx context.Context, offset, limit int) (*models.DocumentListResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	docs, err := s.storage.ListDocuments(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.storage.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return &models.DocumentListResponse{Documents: docs, Total: total}, nil
}

// FilePath returns the path to serve for a document: the converted PDF when
// present, else the original upload.
func (s *Service) FilePath(doc *models.Document) string {
	if doc.ConvertedPath != nil && *doc.ConvertedPath != "" {
		return *doc.ConvertedPath
	}
	return doc.FilePath
}

// Delete removes the document row (annotations cascade), its search index
// entries, and its stored files. File removal is best-effort.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.storage.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if s.forgetter != nil {
		s.forgetter.ForgetDocument(ctx, id)
	}
	if err := s.storage.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing stored file failed", zap.String("path", doc.FilePath), zap.Error(err))
	}
	if doc.ConvertedPath != nil {
		if err := os.Remove(*doc.ConvertedPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing converted file failed", zap.String("path", *doc.ConvertedPath), zap.Error(err))
		}
	}
	return nil
}
