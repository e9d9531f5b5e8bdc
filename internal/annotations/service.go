// Package annotations implements the annotation service: validated creation,
// type-aware partial updates, filtered listing, content search, and deletion.
package annotations

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shirushi/internal/apperr"
	"github.com/hyperjump/shirushi/internal/models"
	"github.com/hyperjump/shirushi/internal/search"
	"github.com/hyperjump/shirushi/internal/storage"
)

// Service manages annotations. When index is non-nil, annotation content is
// kept searchable; index writes are best-effort and never fail the store write.
type Service struct {
	storage  storage.Storage
	index    *search.Index
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates an annotation service. index may be nil to disable
// content search.
func NewService(store storage.Storage, index *search.Index, logger *zap.Logger) *Service {
	v := validator.New()
	// Report errors against JSON field names, not Go struct field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{storage: store, index: index, validate: v, logger: logger}
}

// validationError converts a validator failure into a KindValidation error
// naming the first offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validationf("invalid value for %s (%s)", fe.Field(), fe.Tag())
	}
	return apperr.Validationf("invalid request: %v", err)
}

// round2 rounds to two decimals, matching the NUMERIC(5,2) precision of the
// percent columns.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// trimContent validates and trims annotation content: non-empty after
// trimming, at most 5000 characters.
func trimContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", apperr.Validationf("content cannot be empty or whitespace only")
	}
	if utf8.RuneCountInString(trimmed) > 5000 {
		return "", apperr.Validationf("content exceeds 5000 characters")
	}
	return trimmed, nil
}

// build validates the variant fields of req and assembles an Annotation with
// a fresh ID. The document's existence is checked by the caller.
func (s *Service) build(req *models.AnnotationCreate) (*models.Annotation, error) {
	content, err := trimContent(req.Content)
	if err != nil {
		return nil, err
	}

	a := &models.Annotation{
		ID:         uuid.NewString(),
		DocumentID: req.DocumentID,
		Type:       req.AnnotationType,
		Content:    content,
	}
	switch req.AnnotationType {
	case models.AnnotationTypeDocument:
		if req.Page == nil || req.XPercent == nil || req.YPercent == nil {
			return nil, apperr.Validationf("document annotations require page, x_percent, and y_percent")
		}
		// Pixel fields sent alongside a document annotation are ignored.
		a.Document = &models.DocumentPosition{
			Page:     *req.Page,
			XPercent: round2(*req.XPercent),
			YPercent: round2(*req.YPercent),
		}
	case models.AnnotationTypeImage:
		if req.XPixel == nil || req.YPixel == nil {
			return nil, apperr.Validationf("image annotations require x_pixel and y_pixel")
		}
		a.Image = &models.ImagePosition{
			XPixel: *req.XPixel,
			YPixel: *req.YPixel,
			Color:  req.Color,
		}
	}
	return a, nil
}

// Create validates and persists one new annotation.
func (s *Service) Create(ctx context.Context, req *models.AnnotationCreate) (*models.Annotation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if _, err := s.storage.GetDocument(ctx, req.DocumentID); err != nil {
		return nil, err
	}
	a, err := s.build(req)
	if err != nil {
		return nil, err
	}
	if err := s.storage.CreateAnnotation(ctx, a); err != nil {
		return nil, err
	}
	s.indexAnnotation(ctx, a)
	return a, nil
}

// BulkCreate validates and persists up to 50 annotations for one document in
// a single transaction. All annotations must reference the request's document.
func (s *Service) BulkCreate(ctx context.Context, req *models.AnnotationBulkCreate) ([]*models.Annotation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	for _, item := range req.Annotations {
		if item.DocumentID != req.DocumentID {
			return nil, apperr.Validationf("annotation document_id %q does not match request document_id %q",
				item.DocumentID, req.DocumentID)
		}
	}
	if _, err := s.storage.GetDocument(ctx, req.DocumentID); err != nil {
		return nil, err
	}

	as := make([]*models.Annotation, 0, len(req.Annotations))
	for _, item := range req.Annotations {
		a, err := s.build(item)
		if err != nil {
			return nil, err
		}
		as = append(as, a)
	}
	if err := s.storage.CreateAnnotations(ctx, as); err != nil {
		return nil, err
	}
	for _, a := range as {
		s.indexAnnotation(ctx, a)
	}
	return as, nil
}

// Get returns an annotation by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Annotation, error) {
	return s.storage.GetAnnotation(ctx, id)
}

// List returns a document's annotations with optional type and page filters,
// ordered by creation time, plus the total count and the echoed page filter.
func (s *Service) List(ctx context.Context, documentID string, filter *models.AnnotationFilter) (*models.AnnotationListResponse, error) {
	if documentID == "" {
		return nil, apperr.Validationf("document_id is required")
	}
	if filter != nil && filter.Type != nil && !filter.Type.Valid() {
		return nil, apperr.Validationf("invalid annotation_type %q: must be 'document' or 'image'", *filter.Type)
	}

	as, err := s.storage.ListAnnotations(ctx, documentID, filter)
	if err != nil {
		return nil, err
	}
	resp := &models.AnnotationListResponse{
		Annotations: make([]*models.AnnotationResponse, len(as)),
		Total:       len(as),
		DocumentID:  documentID,
	}
	if filter != nil {
		resp.Page = filter.Page
	}
	for i, a := range as {
		resp.Annotations[i] = a.Response()
	}
	return resp, nil
}

// updateNulls maps JSON keys of AnnotationUpdate to whether their pointer is
// nil, for explicit-null detection.
func updateNulls(upd *models.AnnotationUpdate) map[string]bool {
	return map[string]bool{
		"page":      upd.Page == nil,
		"x_percent": upd.XPercent == nil,
		"y_percent": upd.YPercent == nil,
		"x_pixel":   upd.XPixel == nil,
		"y_pixel":   upd.YPixel == nil,
		"color":     upd.Color == nil,
		"content":   upd.Content == nil,
	}
}

// Update applies a sparse field set to an existing annotation. Fields
// belonging to the other variant reject the whole update; all validation
// happens before the single-statement write, so a failed update leaves the
// stored row unchanged.
func (s *Service) Update(ctx context.Context, id string, upd *models.AnnotationUpdate) (*models.Annotation, error) {
	a, err := s.storage.GetAnnotation(ctx, id)
	if err != nil {
		return nil, err
	}

	switch a.Type {
	case models.AnnotationTypeDocument:
		if upd.Has("x_pixel") || upd.Has("y_pixel") || upd.Has("color") {
			return nil, apperr.InvalidOperationf("cannot update pixel coordinates or color on a document annotation")
		}
	case models.AnnotationTypeImage:
		if upd.Has("page") || upd.Has("x_percent") || upd.Has("y_percent") {
			return nil, apperr.InvalidOperationf("cannot update page or percentage coordinates on an image annotation")
		}
	}

	nulls := updateNulls(upd)
	for _, key := range []string{"page", "x_percent", "y_percent", "x_pixel", "y_pixel", "color", "content"} {
		if upd.Has(key) && nulls[key] {
			return nil, apperr.Validationf("%s cannot be null", key)
		}
	}
	if err := s.validate.Struct(upd); err != nil {
		return nil, validationError(err)
	}

	contentChanged := false
	if upd.Has("content") {
		content, err := trimContent(*upd.Content)
		if err != nil {
			return nil, err
		}
		contentChanged = content != a.Content
		a.Content = content
	}
	switch a.Type {
	case models.AnnotationTypeDocument:
		if upd.Has("page") {
			a.Document.Page = *upd.Page
		}
		if upd.Has("x_percent") {
			a.Document.XPercent = round2(*upd.XPercent)
		}
		if upd.Has("y_percent") {
			a.Document.YPercent = round2(*upd.YPercent)
		}
	case models.AnnotationTypeImage:
		if upd.Has("x_pixel") {
			a.Image.XPixel = *upd.XPixel
		}
		if upd.Has("y_pixel") {
			a.Image.YPixel = *upd.YPixel
		}
		if upd.Has("color") {
			a.Image.Color = upd.Color
		}
	}

	if err := s.storage.UpdateAnnotation(ctx, a); err != nil {
		return nil, err
	}
	if contentChanged {
		s.indexAnnotation(ctx, a)
	}
	return a, nil
}

// Delete removes an annotation permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.storage.DeleteAnnotation(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("search index delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// SearchContent runs a content search over one document's annotations.
func (s *Service) SearchContent(ctx context.Context, documentID, query string, limit int) (*models.AnnotationSearchResponse, error) {
	if documentID == "" {
		return nil, apperr.Validationf("document_id is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validationf("query cannot be empty")
	}
	if s.index == nil {
		return nil, errors.New("search index not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hits, err := s.index.Search(ctx, documentID, query, limit)
	if err != nil {
		return nil, err
	}
	resp := &models.AnnotationSearchResponse{
		Results:    make([]*models.AnnotationSearchResult, 0, len(hits)),
		Query:      query,
		DocumentID: documentID,
	}
	for _, hit := range hits {
		a, err := s.storage.GetAnnotation(ctx, hit.ID)
		if err != nil {
			// The index can lag behind the store; drop stale hits.
			if apperr.KindOf(err) == apperr.KindNotFound {
				s.logger.Debug("stale search hit", zap.String("id", hit.ID))
				continue
			}
			return nil, err
		}
		resp.Results = append(resp.Results, &models.AnnotationSearchResult{
			Annotation: a.Response(),
			Score:      hit.Score,
		})
	}
	resp.Total = len(resp.Results)
	return resp, nil
}

// ForgetDocument removes all of a document's annotations from the search
// index. The rows themselves are removed by the storage cascade when the
// document is deleted.
func (s *Service) ForgetDocument(ctx context.Context, documentID string) {
	if s.index == nil {
		return
	}
	ids, err := s.storage.ListAnnotationIDs(ctx, documentID)
	if err != nil {
		s.logger.Warn("listing annotation ids for index cleanup failed",
			zap.String("document_id", documentID), zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := s.index.DeleteAll(ctx, ids); err != nil {
		s.logger.Warn("search index cleanup failed",
			zap.String("document_id", documentID), zap.Error(err))
	}
}

func (s *Service) indexAnnotation(ctx context.Context, a *models.Annotation) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, a); err != nil {
		s.logger.Warn("search index write failed", zap.String("id", a.ID), zap.Error(err))
	}
}
