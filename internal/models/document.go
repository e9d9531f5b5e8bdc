// Package models defines core data structures for documents and annotations.
package models

import "time"

// Document represents an uploaded file and its metadata. ConvertedPath is set
// by the background conversion once a DOC/DOCX file has a PDF rendition;
// PageCount is only known for PDFs (uploaded or converted).
type Document struct {
	ID               string    `json:"id" db:"id"`
	Filename         string    `json:"filename" db:"filename"`
	OriginalFilename string    `json:"original_filename" db:"original_filename"`
	MimeType         string    `json:"mime_type" db:"mime_type"`
	FileSize         int64     `json:"file_size" db:"file_size"`
	FilePath         string    `json:"file_path" db:"file_path"`
	ConvertedPath    *string   `json:"converted_path" db:"converted_path"`
	PageCount        *int      `json:"page_count" db:"page_count"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// DocumentListResponse is the shape of a document listing.
type DocumentListResponse struct {
	Documents []*Document `json:"documents"`
	Total     int64       `json:"total"`
}
