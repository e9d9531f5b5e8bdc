// Package convert shells out to LibreOffice to produce PDF renditions of
// office documents.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Converter converts DOC/DOCX files to PDF using LibreOffice in headless mode.
// Each conversion runs as one subprocess, killed when the timeout elapses.
type Converter struct {
	binary  string
	outDir  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewConverter returns a converter writing results under outDir.
func NewConverter(binary, outDir string, timeout time.Duration, logger *zap.Logger) *Converter {
	return &Converter{binary: binary, outDir: outDir, timeout: timeout, logger: logger}
}

// Supported reports whether mimeType has a PDF conversion.
func (c *Converter) Supported(mimeType string) bool {
	switch mimeType {
	case "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return true
	}
	return false
}

// ToPDF converts the file at inputPath and returns the path of the PDF
// written under the output directory. originalFilename is used for the
// output name. LibreOffice writes into a per-conversion temp directory which
// is removed afterwards.
func (c *Converter) ToPDF(ctx context.Context, inputPath, originalFilename string) (string, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", fmt.Errorf("input file not found for conversion: %w", err)
	}
	if err := os.MkdirAll(c.outDir, 0755); err != nil {
		return "", fmt.Errorf("create conversion directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename))
	tempDir, err := os.MkdirTemp(c.outDir, "convert-")
	if err != nil {
		return "", fmt.Errorf("create temp directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil && c.logger != nil {
			c.logger.Warn("temp directory cleanup failed", zap.String("dir", tempDir), zap.Error(err))
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, c.binary,
		"--headless", "--convert-to", "pdf", "--outdir", tempDir, inputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("conversion timed out after %s", c.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("conversion failed: %s", msg)
	}

	converted, err := findPDF(tempDir, base)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(c.outDir, fmt.Sprintf("%s_%s.pdf", base, uuid.NewString()[:8]))
	if err := os.Rename(converted, outPath); err != nil {
		return "", fmt.Errorf("move converted file: %w", err)
	}
	return outPath, nil
}

// findPDF locates the PDF LibreOffice wrote into dir. The file normally has
// the input's base name; any .pdf in the directory is accepted as a fallback.
func findPDF(dir, base string) (string, error) {
	expected := filepath.Join(dir, base+".pdf")
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read conversion output: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pdf") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("conversion completed but no PDF was generated")
}
