package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// writeStub writes an executable shell script standing in for the LibreOffice
// binary. Argument 5 is the output directory, argument 6 the input file.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soffice")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "letter.docx")
	if err := os.WriteFile(path, []byte("not really a docx"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSupported(t *testing.T) {
	c := NewConverter("soffice", t.TempDir(), time.Second, zap.NewNop())
	for _, mime := range []string{
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	} {
		if !c.Supported(mime) {
			t.Errorf("%s should be supported", mime)
		}
	}
	for _, mime := range []string{"application/pdf", "image/png", "text/plain"} {
		if c.Supported(mime) {
			t.Errorf("%s should not be supported", mime)
		}
	}
}

func TestToPDF(t *testing.T) {
	stub := writeStub(t, `printf '%%PDF-1.4 stub' > "$5/out.pdf"`)
	outDir := t.TempDir()
	c := NewConverter(stub, outDir, 5*time.Second, zap.NewNop())

	outPath, err := c.ToPDF(context.Background(), writeInput(t), "letter.docx")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(outPath) != outDir {
		t.Errorf("output outside the conversion directory: %s", outPath)
	}
	if !strings.HasPrefix(filepath.Base(outPath), "letter_") || !strings.HasSuffix(outPath, ".pdf") {
		t.Errorf("unexpected output name: %s", outPath)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "%PDF-") {
		t.Errorf("output content: %q", data)
	}

	// The per-conversion temp directory is cleaned up.
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("temp directory left behind: %s", e.Name())
		}
	}
}

func TestToPDF_BinaryFails(t *testing.T) {
	stub := writeStub(t, `echo "soffice: cannot load document" >&2; exit 1`)
	c := NewConverter(stub, t.TempDir(), 5*time.Second, zap.NewNop())

	_, err := c.ToPDF(context.Background(), writeInput(t), "letter.docx")
	if err == nil {
		t.Fatal("expected conversion error")
	}
	if !strings.Contains(err.Error(), "cannot load document") {
		t.Errorf("error should carry stderr: %v", err)
	}
}

func TestToPDF_NoOutput(t *testing.T) {
	stub := writeStub(t, `exit 0`)
	c := NewConverter(stub, t.TempDir(), 5*time.Second, zap.NewNop())

	_, err := c.ToPDF(context.Background(), writeInput(t), "letter.docx")
	if err == nil || !strings.Contains(err.Error(), "no PDF") {
		t.Errorf("got %v, want no-PDF error", err)
	}
}

func TestToPDF_Timeout(t *testing.T) {
	stub := writeStub(t, `sleep 5`)
	c := NewConverter(stub, t.TempDir(), 100*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := c.ToPDF(context.Background(), writeInput(t), "letter.docx")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("got %v, want timeout error", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout did not kill the subprocess promptly")
	}
}

func TestToPDF_MissingInput(t *testing.T) {
	c := NewConverter("soffice", t.TempDir(), time.Second, zap.NewNop())
	_, err := c.ToPDF(context.Background(), filepath.Join(t.TempDir(), "nope.docx"), "nope.docx")
	if err == nil {
		t.Fatal("missing input should fail before the binary is invoked")
	}
}
