package documents

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shirushi/internal/apperr"
	"github.com/hyperjump/shirushi/internal/config"
	"github.com/hyperjump/shirushi/internal/convert"
	"github.com/hyperjump/shirushi/internal/storage"
)

// pngData is a minimal PNG header, enough for content sniffing.
var pngData = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func testUploadConfig() *config.UploadConfig {
	return &config.UploadConfig{
		MaxFileSize: 1024,
		AllowedTypes: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"image/png",
			"image/jpeg",
		},
	}
}

func newTestService(t *testing.T, converter *convert.Converter) (*Service, storage.Storage, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	uploadDir := filepath.Join(dir, "uploads")
	svc := NewService(store, converter, nil, testUploadConfig(), uploadDir, zap.NewNop())
	return svc, store, uploadDir
}

func TestUpload(t *testing.T) {
	svc, store, uploadDir := newTestService(t, nil)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, &UploadInput{Filename: "photo.PNG", Data: pngData})
	if err != nil {
		t.Fatal(err)
	}
	if doc.OriginalFilename != "photo.PNG" {
		t.Errorf("original filename: got %q", doc.OriginalFilename)
	}
	if doc.MimeType != "image/png" {
		t.Errorf("mime: got %q, want image/png", doc.MimeType)
	}
	if doc.Filename == "photo.PNG" {
		t.Error("stored name should not be the client-supplied name")
	}
	if filepath.Ext(doc.Filename) != ".png" {
		t.Errorf("stored name should keep a lowercased extension: %q", doc.Filename)
	}
	if doc.FileSize != int64(len(pngData)) {
		t.Errorf("size: got %d, want %d", doc.FileSize, len(pngData))
	}

	data, err := os.ReadFile(filepath.Join(uploadDir, doc.Filename))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != len(pngData) {
		t.Errorf("stored file size: got %d", len(data))
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MimeType != "image/png" {
		t.Errorf("stored mime: got %q", got.MimeType)
	}
}

func TestUpload_SniffedTypeWins(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	// PNG content declared as PDF: the sniffed type is stored.
	doc, err := svc.Upload(context.Background(), &UploadInput{
		Filename: "fake.pdf",
		MimeType: "application/pdf",
		Data:     pngData,
	})
	if err != nil {
		t.Fatal(err)
	}
	if doc.MimeType != "image/png" {
		t.Errorf("mime: got %q, want sniffed image/png", doc.MimeType)
	}
}

func TestUpload_Rejections(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Upload(ctx, &UploadInput{Filename: "   ", Data: pngData})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("blank filename: got %v, want validation error", err)
	}

	_, err = svc.Upload(ctx, &UploadInput{Filename: "empty.png"})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("empty file: got %v, want validation error", err)
	}

	big := make([]byte, 2048)
	copy(big, pngData)
	_, err = svc.Upload(ctx, &UploadInput{Filename: "big.png", Data: big})
	if apperr.KindOf(err) != apperr.KindTooLarge {
		t.Errorf("oversized file: got %v, want too-large error", err)
	}

	_, err = svc.Upload(ctx, &UploadInput{Filename: "notes.txt", Data: []byte("plain text")})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("disallowed type: got %v, want validation error", err)
	}
}

func TestUpload_BackgroundConversion(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "soffice")
	script := "#!/bin/sh\nprintf '%%PDF-1.4 stub' > \"$5/out.pdf\"\n"
	if err := os.WriteFile(stub, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	converter := convert.NewConverter(stub, filepath.Join(dir, "converted"), 5*time.Second, zap.NewNop())

	svc, store, _ := newTestService(t, converter)
	ctx := context.Background()

	// Undetectable content with a declared office type goes through conversion.
	doc, err := svc.Upload(ctx, &UploadInput{
		Filename: "letter.doc",
		MimeType: "application/msword",
		Data:     []byte{0x00, 0x01, 0x02, 0x03},
	})
	if err != nil {
		t.Fatal(err)
	}
	if doc.ConvertedPath != nil {
		t.Error("converted path should not be set synchronously")
	}

	svc.Wait()

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ConvertedPath == nil {
		t.Fatal("converted path should be recorded after the conversion finishes")
	}
	if _, err := os.Stat(*got.ConvertedPath); err != nil {
		t.Errorf("converted file missing: %v", err)
	}
	if svc.FilePath(got) != *got.ConvertedPath {
		t.Error("FilePath should prefer the converted rendition")
	}
}

func TestUpload_ConversionFailureDoesNotFailUpload(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "soffice")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 1\n"), 0755); err != nil {
		t.Fatal(err)
	}
	converter := convert.NewConverter(stub, filepath.Join(dir, "converted"), 5*time.Second, zap.NewNop())

	svc, store, _ := newTestService(t, converter)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, &UploadInput{
		Filename: "broken.doc",
		MimeType: "application/msword",
		Data:     []byte{0x00, 0x01, 0x02, 0x03},
	})
	if err != nil {
		t.Fatal(err)
	}
	svc.Wait()

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ConvertedPath != nil {
		t.Error("failed conversion should leave converted path unset")
	}
	if svc.FilePath(got) != got.FilePath {
		t.Error("FilePath should fall back to the original upload")
	}
}

func TestList(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	empty, err := svc.List(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Total != 0 {
		t.Errorf("total: got %d, want 0", empty.Total)
	}
	if empty.Documents == nil {
		t.Error("documents should be an empty slice, not nil")
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Upload(ctx, &UploadInput{Filename: "p.png", Data: pngData}); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := svc.List(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Documents) != 2 {
		t.Errorf("got %d documents, want 2 (limit)", len(resp.Documents))
	}
	if resp.Total != 3 {
		t.Errorf("total: got %d, want 3", resp.Total)
	}
}

func TestDelete(t *testing.T) {
	svc, _, uploadDir := newTestService(t, nil)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, &UploadInput{Filename: "p.png", Data: pngData})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(uploadDir, doc.Filename)
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, doc.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("got %v, want not-found after delete", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stored file should be removed")
	}
	if err := svc.Delete(ctx, doc.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("second delete: got %v, want not-found", err)
	}
}
