// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shirushi/internal/apperr"
	"github.com/hyperjump/shirushi/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Foreign keys are enabled
// on every connection so that deleting a document cascades to its annotations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		converted_path TEXT,
		page_count INTEGER,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS annotations (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		annotation_type TEXT NOT NULL,
		page INTEGER,
		x_percent REAL,
		y_percent REAL,
		x_pixel INTEGER,
		y_pixel INTEGER,
		color TEXT,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		CHECK (
			(annotation_type = 'document' AND page IS NOT NULL AND x_percent IS NOT NULL AND y_percent IS NOT NULL
				AND x_pixel IS NULL AND y_pixel IS NULL AND color IS NULL) OR
			(annotation_type = 'image' AND x_pixel IS NOT NULL AND y_pixel IS NOT NULL
				AND page IS NULL AND x_percent IS NULL AND y_percent IS NULL)
		)
	);

	CREATE INDEX IF NOT EXISTS idx_annotations_document_page ON annotations(document_id, page);
	CREATE INDEX IF NOT EXISTS idx_annotations_document_type ON annotations(document_id, annotation_type);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, original_filename, mime_type, file_size, file_path, converted_path, page_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.OriginalFilename, doc.MimeType, doc.FileSize,
		doc.FilePath, doc.ConvertedPath, doc.PageCount, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, original_filename, mime_type, file_size, file_path, converted_path, page_count, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.MimeType, &doc.FileSize,
		&doc.FilePath, &doc.ConvertedPath, &doc.PageCount, &doc.CreatedAt, &doc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("document not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// SetConvertedPath records the PDF rendition path (and its page count, when
// known) produced by a finished conversion.
func (s *SQLiteStorage) SetConvertedPath(ctx context.Context, id, convertedPath string, pageCount *int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET converted_path = ?, page_count = COALESCE(?, page_count), updated_at = ?
		 WHERE id = ?`,
		convertedPath, pageCount, time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperr.NotFoundf("document not found: %s", id)
	}
	return nil
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, original_filename, mime_type, file_size, file_path, converted_path, page_count, created_at, updated_at
		 FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.MimeType, &doc.FileSize,
			&doc.FilePath, &doc.ConvertedPath, &doc.PageCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document by ID. Its annotations are removed by the
// foreign-key cascade.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperr.NotFoundf("document not found: %s", id)
	}
	return nil
}

// annotationColumns is the column list shared by annotation queries.
const annotationColumns = `id, document_id, annotation_type, page, x_percent, y_percent, x_pixel, y_pixel, color, content, created_at, updated_at`

// flattenAnnotation converts the tagged-union position into the nullable
// column values of the flat row.
func flattenAnnotation(a *models.Annotation) (page sql.NullInt64, xPercent, yPercent sql.NullFloat64, xPixel, yPixel sql.NullInt64, color sql.NullString) {
	if a.Document != nil {
		page = sql.NullInt64{Int64: int64(a.Document.Page), Valid: true}
		xPercent = sql.NullFloat64{Float64: a.Document.XPercent, Valid: true}
		yPercent = sql.NullFloat64{Float64: a.Document.YPercent, Valid: true}
	}
	if a.Image != nil {
		xPixel = sql.NullInt64{Int64: int64(a.Image.XPixel), Valid: true}
		yPixel = sql.NullInt64{Int64: int64(a.Image.YPixel), Valid: true}
		if a.Image.Color != nil {
			color = sql.NullString{String: *a.Image.Color, Valid: true}
		}
	}
	return
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAnnotation reads one flat row and rebuilds the tagged-union position.
func scanAnnotation(row rowScanner) (*models.Annotation, error) {
	var a models.Annotation
	var page, xPixel, yPixel sql.NullInt64
	var xPercent, yPercent sql.NullFloat64
	var color sql.NullString
	err := row.Scan(&a.ID, &a.DocumentID, &a.Type, &page, &xPercent, &yPercent,
		&xPixel, &yPixel, &color, &a.Content, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	switch a.Type {
	case models.AnnotationTypeDocument:
		a.Document = &models.DocumentPosition{
			Page:     int(page.Int64),
			XPercent: xPercent.Float64,
			YPercent: yPercent.Float64,
		}
	case models.AnnotationTypeImage:
		pos := &models.ImagePosition{XPixel: int(xPixel.Int64), YPixel: int(yPixel.Int64)}
		if color.Valid {
			c := color.String
			pos.Color = &c
		}
		a.Image = pos
	default:
		return nil, fmt.Errorf("unknown annotation type in row %s: %q", a.ID, a.Type)
	}
	return &a, nil
}

// CreateAnnotation inserts an annotation.
func (s *SQLiteStorage) CreateAnnotation(ctx context.Context, a *models.Annotation) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	page, xPercent, yPercent, xPixel, yPixel, color := flattenAnnotation(a)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO annotations (`+annotationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DocumentID, a.Type, page, xPercent, yPercent, xPixel, yPixel, color,
		a.Content, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// CreateAnnotations inserts multiple annotations in one transaction; either
// all rows are written or none.
func (s *SQLiteStorage) CreateAnnotations(ctx context.Context, as []*models.Annotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO annotations (`+annotationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, a := range as {
		a.CreatedAt = now
		a.UpdatedAt = now
		page, xPercent, yPercent, xPixel, yPixel, color := flattenAnnotation(a)
		if _, err := stmt.ExecContext(ctx, a.ID, a.DocumentID, a.Type,
			page, xPercent, yPercent, xPixel, yPixel, color,
			a.Content, a.CreatedAt, a.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetAnnotation returns an annotation by ID.
func (s *SQLiteStorage) GetAnnotation(ctx context.Context, id string) (*models.Annotation, error) {
	a, err := scanAnnotation(s.db.QueryRowContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("annotation not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnnotations returns a document's annotations, optionally filtered by
// type and page, ordered by creation time with arrival order breaking ties.
func (s *SQLiteStorage) ListAnnotations(ctx context.Context, documentID string, filter *models.AnnotationFilter) ([]*models.Annotation, error) {
	query := `SELECT ` + annotationColumns + ` FROM annotations WHERE document_id = ?`
	args := []interface{}{documentID}
	if filter != nil {
		if filter.Type != nil {
			query += ` AND annotation_type = ?`
			args = append(args, *filter.Type)
		}
		if filter.Page != nil {
			query += ` AND page = ?`
			args = append(args, *filter.Page)
		}
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAnnotation writes the mutable fields of an existing annotation in a
// single statement. Type and created_at are never altered; updated_at is
// bumped here.
func (s *SQLiteStorage) UpdateAnnotation(ctx context.Context, a *models.Annotation) error {
	a.UpdatedAt = time.Now()
	page, xPercent, yPercent, xPixel, yPixel, color := flattenAnnotation(a)
	result, err := s.db.ExecContext(ctx,
		`UPDATE annotations SET page = ?, x_percent = ?, y_percent = ?, x_pixel = ?, y_pixel = ?, color = ?, content = ?, updated_at = ?
		 WHERE id = ?`,
		page, xPercent, yPercent, xPixel, yPixel, color, a.Content, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperr.NotFoundf("annotation not found: %s", a.ID)
	}
	return nil
}

// DeleteAnnotation removes an annotation by ID.
func (s *SQLiteStorage) DeleteAnnotation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperr.NotFoundf("annotation not found: %s", id)
	}
	return nil
}

// ListAnnotationIDs returns the IDs of all annotations owned by a document.
// Used to clean ancillary indexes before a cascade delete.
func (s *SQLiteStorage) ListAnnotationIDs(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM annotations WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountAnnotations returns the total number of annotations.
func (s *SQLiteStorage) CountAnnotations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
