// Package iiif defines the IIIF Presentation API 3 structures artgrid reads
// and writes: Canvas, Manifest and Collection, plus the annotation and
// content-resource records they are built from.
//
// Only the subset of the model artgrid produces is represented. Unknown fields
// in input documents are ignored on decode.
package iiif

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Context is the JSON-LD context of every top-level document.
const Context = "http://iiif.io/api/presentation/3/context.json"

// Resource types.
const (
	TypeCanvas         = "Canvas"
	TypeManifest       = "Manifest"
	TypeCollection     = "Collection"
	TypeAnnotationPage = "AnnotationPage"
	TypeAnnotation     = "Annotation"
	TypeImage          = "Image"
	TypeImageService3  = "ImageService3"
)

// MotivationPainting marks the annotation that paints an image onto a canvas.
const MotivationPainting = "painting"

// Language is the single language artgrid writes labels and values in.
const Language = "en"

// LanguageMap maps a language code to one or more strings.
type LanguageMap map[string][]string

// Text wraps s as {"en": [s]}.
func Text(s string) LanguageMap {
	return LanguageMap{Language: {s}}
}

// String returns the first English value, or the first value of any
// language when there is no English entry.
func (m LanguageMap) String() string {
	if v := m[Language]; len(v) > 0 {
		return v[0]
	}
	for _, v := range m {
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// MetadataEntry is one label/value pair of a resource's metadata block.
type MetadataEntry struct {
	Label LanguageMap `json:"label"`
	Value LanguageMap `json:"value"`
}

// Service describes an image service attached to a content resource.
type Service struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Profile string `json:"profile,omitempty"`
}

// ContentResource describes one renderable image.
type ContentResource struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Format  string    `json:"format,omitempty"`
	Width   int       `json:"width,omitempty"`
	Height  int       `json:"height,omitempty"`
	Service []Service `json:"service,omitempty"`
}

// Annotation associates a body with a target canvas.
type Annotation struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Motivation string          `json:"motivation"`
	Body       ContentResource `json:"body"`
	Target     string          `json:"target"`
}

// AnnotationPage is an ordered list of annotations.
type AnnotationPage struct {
	ID    string       `json:"id"`
	Type  string       `json:"type"`
	Items []Annotation `json:"items"`
}

// Canvas is a virtual container for one painted image.
type Canvas struct {
	Context   string            `json:"@context,omitempty"`
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Label     LanguageMap       `json:"label,omitempty"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Metadata  []MetadataEntry   `json:"metadata,omitempty"`
	Thumbnail []ContentResource `json:"thumbnail,omitempty"`
	Items     []AnnotationPage  `json:"items"`
}

// Manifest is an ordered list of canvases.
type Manifest struct {
	Context   string            `json:"@context,omitempty"`
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Label     LanguageMap       `json:"label,omitempty"`
	Metadata  []MetadataEntry   `json:"metadata,omitempty"`
	Thumbnail []ContentResource `json:"thumbnail,omitempty"`
	Items     []Canvas          `json:"items"`
}

// Collection is an ordered list of manifests.
type Collection struct {
	Context  string          `json:"@context,omitempty"`
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Label    LanguageMap     `json:"label,omitempty"`
	Metadata []MetadataEntry `json:"metadata,omitempty"`
	Items    []Manifest      `json:"items"`
}

// NewCanvas builds a canvas with a single painting annotation targeting it.
func NewCanvas(id string, width, height int, body ContentResource) Canvas {
	page := strings.TrimRight(id, "/") + "/page/1"
	return Canvas{
		ID:     id,
		Type:   TypeCanvas,
		Width:  width,
		Height: height,
		Items: []AnnotationPage{{
			ID:   page,
			Type: TypeAnnotationPage,
			Items: []Annotation{{
				ID:         page + "/annotation/1",
				Type:       TypeAnnotation,
				Motivation: MotivationPainting,
				Body:       body,
				Target:     id,
			}},
		}},
	}
}

// Body returns the body of the first painting annotation.
func (c Canvas) Body() (ContentResource, bool) {
	for _, page := range c.Items {
		for _, a := range page.Items {
			if strings.EqualFold(a.Motivation, MotivationPainting) {
				return a.Body, true
			}
		}
	}
	return ContentResource{}, false
}

// Canvases returns every canvas of the collection's manifests in order.
func (c Collection) Canvases() []Canvas {
	var out []Canvas
	for _, m := range c.Items {
		out = append(out, m.Items...)
	}
	return out
}

// DetectType returns the top-level "type" of a JSON document, or "" when the
// document has none.
func DetectType(data []byte) (string, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("failed to read document type: %w", err)
	}
	return probe.Type, nil
}
