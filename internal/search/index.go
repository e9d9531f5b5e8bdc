// Package search provides the Bleve index over annotation content.
package search

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/shirushi/internal/models"
)

// Index is a keyword index over annotation content, filterable by the owning
// document. It is ancillary to the store: writes to it are best-effort and
// the store remains the source of truth.
type Index struct {
	index bleve.Index
}

// annotationDoc is the indexed shape of an annotation.
type annotationDoc struct {
	DocumentID string `json:"document_id"`
	Type       string `json:"annotation_type"`
	Content    string `json:"content"`
}

// NewIndex creates or opens a Bleve index at path.
// An existing index is opened and reused; remove the directory to force a rebuild
// after a mapping change.
func NewIndex(path string) (*Index, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming): annotation notes
	// are short strings where exact-word matching beats stemmed recall.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("document_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("annotation_type", keywordFieldMapping)
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &Index{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &Index{index: index}, nil
}

// Result is one search hit.
type Result struct {
	ID    string
	Score float64
}

// Index indexes an annotation's content under its ID.
func (i *Index) Index(ctx context.Context, a *models.Annotation) error {
	return i.index.Index(a.ID, annotationDoc{
		DocumentID: a.DocumentID,
		Type:       string(a.Type),
		Content:    a.Content,
	})
}

// Delete removes an annotation from the index.
func (i *Index) Delete(ctx context.Context, id string) error {
	return i.index.Delete(id)
}

// DeleteAll removes multiple annotations from the index in one batch.
func (i *Index) DeleteAll(ctx context.Context, ids []string) error {
	batch := i.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return i.index.Batch(batch)
}

// Search runs a match query over annotation content, restricted to one
// document, and returns up to limit hits ordered by relevance.
func (i *Index) Search(ctx context.Context, documentID, query string, limit int) ([]*Result, error) {
	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	tq := bleve.NewTermQuery(documentID)
	tq.SetField("document_id")
	q := bleve.NewConjunctionQuery(mq, tq)

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for n, hit := range results.Hits {
		out[n] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the number of indexed annotations.
func (i *Index) DocCount() (uint64, error) {
	return i.index.DocCount()
}

// Close closes the underlying index.
func (i *Index) Close() error {
	return i.index.Close()
}
