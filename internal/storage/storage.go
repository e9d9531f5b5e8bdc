// Package storage defines the persistence interface for documents and annotations.
package storage

import (
	"context"

	"github.com/hyperjump/shirushi/internal/models"
)

// Storage defines document and annotation persistence operations.
// Operations on a missing row return an apperr.KindNotFound error.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	SetConvertedPath(ctx context.Context, id, convertedPath string, pageCount *int) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Annotation operations
	CreateAnnotation(ctx context.Context, a *models.Annotation) error
	CreateAnnotations(ctx context.Context, as []*models.Annotation) error
	GetAnnotation(ctx context.Context, id string) (*models.Annotation, error)
	ListAnnotations(ctx context.Context, documentID string, filter *models.AnnotationFilter) ([]*models.Annotation, error)
	UpdateAnnotation(ctx context.Context, a *models.Annotation) error
	DeleteAnnotation(ctx context.Context, id string) error
	ListAnnotationIDs(ctx context.Context, documentID string) ([]string, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountAnnotations(ctx context.Context) (int64, error)

	Close() error
}
