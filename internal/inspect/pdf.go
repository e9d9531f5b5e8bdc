// Package inspect examines uploaded files: content-type sniffing and PDF page counts.
package inspect

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

// PDFPageCount returns the number of pages in the PDF at path.
// Returns an error if the file cannot be read or is not a parseable PDF.
func PDFPageCount(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("open PDF: %w", err)
	}
	return r.NumPage(), nil
}
