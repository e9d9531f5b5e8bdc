// Package integration provides end-to-end tests (requires real storage and index).
package integration

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/shirushi/internal/annotations"
	"github.com/hyperjump/shirushi/internal/apperr"
	"github.com/hyperjump/shirushi/internal/config"
	"github.com/hyperjump/shirushi/internal/documents"
	"github.com/hyperjump/shirushi/internal/models"
	"github.com/hyperjump/shirushi/internal/search"
	"github.com/hyperjump/shirushi/internal/storage"
)

func TestIntegration_AnnotationLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath: filepath.Join(dir, "db.sqlite"),
			UploadDir:    filepath.Join(dir, "uploads"),
			IndexPath:    filepath.Join(dir, "bleve"),
		},
		Upload: config.UploadConfig{
			MaxFileSize:  1024 * 1024,
			AllowedTypes: []string{"application/pdf", "image/png"},
		},
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	idx, err := search.NewIndex(cfg.Storage.IndexPath)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	logger := zap.NewNop()
	anns := annotations.NewService(store, idx, logger)
	docs := documents.NewService(store, nil, anns, &cfg.Upload, cfg.Storage.UploadDir, logger)
	ctx := context.Background()

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	doc, err := docs.Upload(ctx, &documents.UploadInput{Filename: "diagram.png", Data: png})
	if err != nil {
		t.Fatal(err)
	}

	page, x, y := 1, 25.0, 75.0
	created, err := anns.Create(ctx, &models.AnnotationCreate{
		AnnotationType: models.AnnotationTypeDocument,
		DocumentID:     doc.ID,
		Content:        "check the axis labels",
		Page:           &page,
		XPercent:       &x,
		YPercent:       &y,
	})
	if err != nil {
		t.Fatal(err)
	}

	px, py := 10, 20
	if _, err := anns.Create(ctx, &models.AnnotationCreate{
		AnnotationType: models.AnnotationTypeImage,
		DocumentID:     doc.ID,
		Content:        "highlight this corner",
		XPixel:         &px,
		YPixel:         &py,
	}); err != nil {
		t.Fatal(err)
	}

	list, err := anns.List(ctx, doc.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 {
		t.Fatalf("total: got %d, want 2", list.Total)
	}
	if list.Annotations[0].ID != created.ID {
		t.Error("annotations should come back in creation order")
	}

	found, err := anns.SearchContent(ctx, doc.ID, "axis", 0)
	if err != nil {
		t.Fatal(err)
	}
	if found.Total != 1 || found.Results[0].Annotation.ID != created.ID {
		t.Fatalf("search: got %d results", found.Total)
	}

	if err := docs.Delete(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := anns.Get(ctx, created.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("annotation should be gone after document delete: %v", err)
	}
	found, err = anns.SearchContent(ctx, doc.ID, "axis", 0)
	if err != nil {
		t.Fatal(err)
	}
	if found.Total != 0 {
		t.Errorf("search after delete: got %d results, want 0", found.Total)
	}
}
