package models

import (
	"encoding/json"
	"time"
)

// AnnotationType discriminates the two annotation variants.
type AnnotationType string

const (
	// AnnotationTypeDocument anchors by page number and percentage coordinates.
	AnnotationTypeDocument AnnotationType = "document"
	// AnnotationTypeImage anchors by pixel coordinates.
	AnnotationTypeImage AnnotationType = "image"
)

// Valid reports whether t is one of the two known variants.
func (t AnnotationType) Valid() bool {
	return t == AnnotationTypeDocument || t == AnnotationTypeImage
}

// DocumentPosition anchors an annotation to a location on a page, expressed
// as percentages of the page dimensions. Percentages carry two-decimal
// precision.
type DocumentPosition struct {
	Page     int     `json:"page"`
	XPercent float64 `json:"x_percent"`
	YPercent float64 `json:"y_percent"`
}

// ImagePosition anchors an annotation to a pixel location on an image.
// Color is an optional 6-digit hex code like "#FFFF00".
type ImagePosition struct {
	XPixel int     `json:"x_pixel"`
	YPixel int     `json:"y_pixel"`
	Color  *string `json:"color"`
}

// Annotation is a user-authored note anchored to a location within a document
// or image. Exactly one of Document or Image is non-nil, matching Type; the
// flat nullable-column row shape only exists at the storage boundary.
type Annotation struct {
	ID         string
	DocumentID string
	Type       AnnotationType
	Document   *DocumentPosition
	Image      *ImagePosition
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Response converts the annotation to its flat wire shape. Fields belonging
// to the other variant are serialized as explicit nulls.
func (a *Annotation) Response() *AnnotationResponse {
	r := &AnnotationResponse{
		ID:             a.ID,
		DocumentID:     a.DocumentID,
		AnnotationType: a.Type,
		Content:        a.Content,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.Document != nil {
		page := a.Document.Page
		x := a.Document.XPercent
		y := a.Document.YPercent
		r.Page, r.XPercent, r.YPercent = &page, &x, &y
	}
	if a.Image != nil {
		x := a.Image.XPixel
		y := a.Image.YPixel
		r.XPixel, r.YPixel = &x, &y
		r.Color = a.Image.Color
	}
	return r
}

// AnnotationResponse is the flat wire shape of an annotation. Variant fields
// not applicable to the annotation's type are null.
type AnnotationResponse struct {
	ID             string         `json:"id"`
	DocumentID     string         `json:"document_id"`
	AnnotationType AnnotationType `json:"annotation_type"`
	Page           *int           `json:"page"`
	XPercent       *float64       `json:"x_percent"`
	YPercent       *float64       `json:"y_percent"`
	XPixel         *int           `json:"x_pixel"`
	YPixel         *int           `json:"y_pixel"`
	Color          *string        `json:"color"`
	Content        string         `json:"content"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AnnotationCreate is the tagged payload for creating an annotation. Which
// coordinate fields are required depends on AnnotationType; the cross-field
// rules are enforced by the annotation service, the per-field ranges by
// validate tags.
type AnnotationCreate struct {
	AnnotationType AnnotationType `json:"annotation_type" validate:"required,oneof=document image"`
	DocumentID     string         `json:"document_id" validate:"required"`
	Content        string         `json:"content" validate:"required,max=5000"`

	Page     *int     `json:"page" validate:"omitempty,gte=1"`
	XPercent *float64 `json:"x_percent" validate:"omitempty,gte=0,lte=100"`
	YPercent *float64 `json:"y_percent" validate:"omitempty,gte=0,lte=100"`

	XPixel *int    `json:"x_pixel" validate:"omitempty,gte=0"`
	YPixel *int    `json:"y_pixel" validate:"omitempty,gte=0"`
	Color  *string `json:"color" validate:"omitempty,hexcolor,len=7"`
}

// AnnotationBulkCreate creates up to 50 annotations for one document in a
// single transaction.
type AnnotationBulkCreate struct {
	DocumentID  string              `json:"document_id" validate:"required"`
	Annotations []*AnnotationCreate `json:"annotations" validate:"required,min=1,max=50,dive,required"`
}

// AnnotationUpdate is a sparse update payload. JSON key presence is recorded
// during unmarshalling so that a key explicitly sent as null still counts as
// an assignment attempt, distinct from an absent key.
type AnnotationUpdate struct {
	Page     *int     `json:"page" validate:"omitempty,gte=1"`
	XPercent *float64 `json:"x_percent" validate:"omitempty,gte=0,lte=100"`
	YPercent *float64 `json:"y_percent" validate:"omitempty,gte=0,lte=100"`
	XPixel   *int     `json:"x_pixel" validate:"omitempty,gte=0"`
	YPixel   *int     `json:"y_pixel" validate:"omitempty,gte=0"`
	Color    *string  `json:"color" validate:"omitempty,hexcolor,len=7"`
	Content  *string  `json:"content" validate:"omitempty,max=5000"`

	present map[string]bool
}

// UnmarshalJSON decodes the payload and records which keys were present.
func (u *AnnotationUpdate) UnmarshalJSON(data []byte) error {
	type plain AnnotationUpdate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*u = AnnotationUpdate(p)
	u.present = make(map[string]bool, len(keys))
	for k := range keys {
		u.present[k] = true
	}
	return nil
}

// Has reports whether the named JSON key was present in the payload.
func (u *AnnotationUpdate) Has(key string) bool { return u.present[key] }

// MarkPresent records keys as present. Callers constructing updates in code
// (the CLI, tests) use this instead of UnmarshalJSON.
func (u *AnnotationUpdate) MarkPresent(keys ...string) {
	if u.present == nil {
		u.present = make(map[string]bool, len(keys))
	}
	for _, k := range keys {
		u.present[k] = true
	}
}

// AnnotationFilter narrows a per-document annotation listing. A Page filter
// applies regardless of annotation type; image annotations have no page, so
// an image-type query with a page filter yields the natural empty result.
type AnnotationFilter struct {
	Type *AnnotationType
	Page *int
}

// AnnotationListResponse is the shape of a per-document annotation listing.
// Page echoes the page filter that was applied, if any.
type AnnotationListResponse struct {
	Annotations []*AnnotationResponse `json:"annotations"`
	Total       int                   `json:"total"`
	Page        *int                  `json:"page"`
	DocumentID  string                `json:"document_id"`
}

// AnnotationSearchResult is one content-search hit with its relevance score.
type AnnotationSearchResult struct {
	Annotation *AnnotationResponse `json:"annotation"`
	Score      float64             `json:"score"`
}

// AnnotationSearchResponse is the shape of an annotation content search.
type AnnotationSearchResponse struct {
	Results    []*AnnotationSearchResult `json:"results"`
	Total      int                       `json:"total"`
	Query      string                    `json:"query"`
	DocumentID string                    `json:"document_id"`
}
