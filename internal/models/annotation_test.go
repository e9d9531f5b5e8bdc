package models

import (
	"encoding/json"
	"testing"
)

func TestAnnotationUpdate_PresenceTracking(t *testing.T) {
	var upd AnnotationUpdate
	payload := `{"content": "note", "x_pixel": null}`
	if err := json.Unmarshal([]byte(payload), &upd); err != nil {
		t.Fatal(err)
	}
	if !upd.Has("content") {
		t.Error("content should be present")
	}
	if !upd.Has("x_pixel") {
		t.Error("x_pixel sent as explicit null should still count as present")
	}
	if upd.XPixel != nil {
		t.Error("x_pixel value should be nil")
	}
	if upd.Has("page") {
		t.Error("page was never sent")
	}
}

func TestAnnotationUpdate_MarkPresent(t *testing.T) {
	page := 3
	upd := AnnotationUpdate{Page: &page}
	upd.MarkPresent("page")
	if !upd.Has("page") {
		t.Error("page should be present after MarkPresent")
	}
	if upd.Has("content") {
		t.Error("content should not be present")
	}
}

func TestAnnotationType_Valid(t *testing.T) {
	if !AnnotationTypeDocument.Valid() || !AnnotationTypeImage.Valid() {
		t.Error("known types should be valid")
	}
	if AnnotationType("video").Valid() {
		t.Error("unknown type should be invalid")
	}
	if AnnotationType("").Valid() {
		t.Error("empty type should be invalid")
	}
}

func TestAnnotation_Response_DocumentVariant(t *testing.T) {
	a := &Annotation{
		ID:         "a1",
		DocumentID: "d1",
		Type:       AnnotationTypeDocument,
		Document:   &DocumentPosition{Page: 1, XPercent: 50.5, YPercent: 75.25},
		Content:    "note",
	}
	r := a.Response()
	if r.Page == nil || *r.Page != 1 {
		t.Errorf("page: got %v", r.Page)
	}
	if r.XPixel != nil || r.YPixel != nil || r.Color != nil {
		t.Error("image fields should be nil on a document annotation")
	}

	// The wire shape serializes the other variant's fields as explicit nulls.
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"page", "x_percent", "y_percent", "x_pixel", "y_pixel", "color"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("key %s missing from wire shape", key)
		}
	}
	if string(raw["x_pixel"]) != "null" {
		t.Errorf("x_pixel: got %s, want null", raw["x_pixel"])
	}
	if string(raw["page"]) != "1" {
		t.Errorf("page: got %s, want 1", raw["page"])
	}
}

func TestAnnotation_Response_ImageVariant(t *testing.T) {
	color := "#FFFF00"
	a := &Annotation{
		ID:         "a2",
		DocumentID: "d1",
		Type:       AnnotationTypeImage,
		Image:      &ImagePosition{XPixel: 10, YPixel: 20, Color: &color},
		Content:    "pixel note",
	}
	r := a.Response()
	if r.XPixel == nil || *r.XPixel != 10 || r.YPixel == nil || *r.YPixel != 20 {
		t.Errorf("pixel coordinates: got %v, %v", r.XPixel, r.YPixel)
	}
	if r.Color == nil || *r.Color != "#FFFF00" {
		t.Errorf("color: got %v", r.Color)
	}
	if r.Page != nil || r.XPercent != nil || r.YPercent != nil {
		t.Error("document fields should be nil on an image annotation")
	}
}
