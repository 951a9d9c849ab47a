package art

import (
	"context"
	"encoding/json"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/iiif"
	"github.com/ironsheep/artgrid/internal/resource"
)

func itemWithThumbnails(t *testing.T) (*Item, *memSaver) {
	t.Helper()
	files := map[string][]byte{"https://example.org/art/irises.png": pngBytes(t, 200, 100, color.White)}
	svc, saver := testServices(t, files)
	meta := Metadata{{Key: KeyTitle, Value: "Irises"}, {Key: KeyCreator, Value: "Vincent van Gogh"}}
	it, err := FromLocation(svc, "", "https://example.org/art/irises.png", meta)
	if err != nil {
		t.Fatalf("FromLocation failed: %v", err)
	}
	for _, w := range []int{50, 100} {
		if _, err := it.CreateThumbnail(context.Background(), w, resource.ThumbnailOptions{SaveDir: "thumbs"}); err != nil {
			t.Fatalf("CreateThumbnail failed: %v", err)
		}
	}
	return it, saver
}

func TestToCanvas(t *testing.T) {
	it, _ := itemWithThumbnails(t)

	c, err := it.ToCanvas(context.Background(), "https://example.org/canvas/irises", IIIFOptions{})
	if err != nil {
		t.Fatalf("ToCanvas failed: %v", err)
	}
	if c.Width != 200 || c.Height != 100 {
		t.Errorf("size: got %dx%d", c.Width, c.Height)
	}
	body, ok := c.Body()
	if !ok || body.ID != "https://example.org/art/irises.png" || body.Format != "image/png" {
		t.Errorf("body: %+v", body)
	}
	if len(c.Thumbnail) != 2 || c.Thumbnail[0].Width != 100 || c.Thumbnail[1].Width != 50 {
		t.Errorf("thumbnails should be width-descending: %+v", c.Thumbnail)
	}
	if len(c.Metadata) != 2 {
		t.Fatalf("metadata: %+v", c.Metadata)
	}
	if c.Metadata[0].Label.String() != "Title" || c.Metadata[0].Value.String() != "Irises" {
		t.Errorf("first metadata entry: %+v", c.Metadata[0])
	}
	if c.Metadata[1].Label.String() != "Creator" {
		t.Errorf("second metadata entry: %+v", c.Metadata[1])
	}
	if c.Label.String() != "Irises" {
		t.Errorf("Label: got %v", c.Label)
	}
}

func TestToCanvas_Exclude(t *testing.T) {
	it, _ := itemWithThumbnails(t)

	c, err := it.ToCanvas(context.Background(), "c1", IIIFOptions{Exclude: []string{ExcludeThumbnails, ExcludeMetadata}})
	if err != nil {
		t.Fatalf("ToCanvas failed: %v", err)
	}
	raw, _ := json.Marshal(c)
	var doc map[string]any
	json.Unmarshal(raw, &doc)
	if _, ok := doc["thumbnail"]; ok {
		t.Error("thumbnail should be excluded")
	}
	if _, ok := doc["metadata"]; ok {
		t.Error("metadata should be excluded")
	}
}

func TestToCanvas_InMemoryThumbnail(t *testing.T) {
	files := map[string][]byte{"a.png": pngBytes(t, 80, 40, color.White)}
	svc, saver := testServices(t, files)
	it, _ := FromLocation(svc, "", "a.png", nil)
	if _, err := it.LoadOrCreateThumbnail(context.Background(), 20); err != nil {
		t.Fatalf("LoadOrCreateThumbnail failed: %v", err)
	}

	_, err := it.ToCanvas(context.Background(), "c1", IIIFOptions{})
	if !errors.Is(err, errors.CodeInput) {
		t.Fatalf("in-memory thumbnail without save dir should be INPUT, got %v", err)
	}

	c, err := it.ToCanvas(context.Background(), "c1", IIIFOptions{SaveDir: "out"})
	if err != nil {
		t.Fatalf("ToCanvas failed: %v", err)
	}
	want := filepath.Join("out", "a-20.jpg")
	if c.Thumbnail[0].ID != want || !saver.has(want) {
		t.Errorf("thumbnail id: got %s, want %s", c.Thumbnail[0].ID, want)
	}
	if thumb, _ := it.Thumbnail(20); thumb.InMemory() {
		t.Error("item slot should now hold the saved thumbnail")
	}
}

func TestToManifest_SaveJSON(t *testing.T) {
	it, saver := itemWithThumbnails(t)

	m, err := it.ToManifest(context.Background(), "https://example.org/m/irises", IIIFOptions{SaveDir: "out", SaveJSON: true})
	if err != nil {
		t.Fatalf("ToManifest failed: %v", err)
	}
	if m.Context != iiif.Context || m.Type != iiif.TypeManifest {
		t.Errorf("manifest header: %s %s", m.Context, m.Type)
	}
	if len(m.Items) != 1 || m.Items[0].ID != "https://example.org/m/irises/canvas/1" {
		t.Errorf("items: %+v", m.Items)
	}

	path := filepath.Join("out", "irises.json")
	if !saver.has(path) {
		t.Fatalf("manifest JSON was not saved to %s", path)
	}
	var doc iiif.Manifest
	if err := json.Unmarshal(saver.files[path], &doc); err != nil {
		t.Fatalf("saved JSON invalid: %v", err)
	}
	if doc.ID != m.ID {
		t.Errorf("saved ID: got %s", doc.ID)
	}

	if _, err := it.ToManifest(context.Background(), "m", IIIFOptions{SaveJSON: true}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("SaveJSON without dir should be INPUT, got %v", err)
	}
}

func TestFromCanvas_RoundTrip(t *testing.T) {
	it, _ := itemWithThumbnails(t)
	c, err := it.ToCanvas(context.Background(), "https://example.org/canvas/irises", IIIFOptions{})
	if err != nil {
		t.Fatalf("ToCanvas failed: %v", err)
	}

	svc, _ := testServices(t, nil)
	back, err := FromCanvas(svc, c)
	if err != nil {
		t.Fatalf("FromCanvas failed: %v", err)
	}
	if back.ID != c.ID {
		t.Errorf("ID: got %s", back.ID)
	}
	if back.Source().ID() != "https://example.org/art/irises.png" {
		t.Errorf("source: got %s", back.Source().ID())
	}
	if !back.ThumbnailExists(100) || !back.ThumbnailExists(50) {
		t.Errorf("thumbnails: got %v", back.ThumbnailWidths())
	}
	if back.Metadata.Title() != "Irises" || back.Metadata.Creator() != "Vincent van Gogh" {
		t.Errorf("metadata: %+v", back.Metadata)
	}
	d, ok := back.CachedDimensions()
	if !ok || d.Width != 200 || d.Height != 100 {
		t.Errorf("dimensions should come from the canvas: %+v, %v", d, ok)
	}
}

func TestFromManifest(t *testing.T) {
	svc, _ := testServices(t, nil)
	c := iiif.NewCanvas("c1", 10, 10, iiif.ContentResource{ID: "a.png", Type: iiif.TypeImage})
	m := iiif.Manifest{
		ID:       "m1",
		Type:     iiif.TypeManifest,
		Label:    iiif.Text("Sunflowers"),
		Metadata: []iiif.MetadataEntry{{Label: iiif.Text("Date"), Value: iiif.Text("1888")}},
		Items:    []iiif.Canvas{c},
	}
	it, err := FromManifest(svc, m)
	if err != nil {
		t.Fatalf("FromManifest failed: %v", err)
	}
	if v, _ := it.Metadata.Get(KeyDate); v != "1888" {
		t.Errorf("manifest metadata should be used: %+v", it.Metadata)
	}
	if it.Metadata.Title() != "Sunflowers" {
		t.Errorf("label should fill the title: %+v", it.Metadata)
	}

	if _, err := FromManifest(svc, iiif.Manifest{ID: "empty"}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("empty manifest should be INPUT, got %v", err)
	}
	if _, err := FromCanvas(svc, iiif.Canvas{ID: "bare"}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("canvas without body should be INPUT, got %v", err)
	}
}

func TestManifestItems(t *testing.T) {
	svc, _ := testServices(t, nil)
	thumb := iiif.ContentResource{ID: "thumbs/m-40.jpg", Type: iiif.TypeImage, Width: 40, Height: 20}
	own := iiif.NewCanvas("c2", 10, 10, iiif.ContentResource{ID: "b.png", Type: iiif.TypeImage})
	own.Label = iiif.Text("Starry Night")
	own.Metadata = []iiif.MetadataEntry{{Label: iiif.Text("Date"), Value: iiif.Text("1889")}}

	tests := []struct {
		name      string
		canvases  []iiif.Canvas
		wantIDs   []string
		wantTitle []string
		wantDate  []string
	}{
		{
			name:      "single canvas keeps the manifest id",
			canvases:  []iiif.Canvas{iiif.NewCanvas("c1", 10, 10, iiif.ContentResource{ID: "a.png", Type: iiif.TypeImage})},
			wantIDs:   []string{"m1"},
			wantTitle: []string{"Sunflowers"},
			wantDate:  []string{"1888"},
		},
		{
			name: "every canvas becomes an item",
			canvases: []iiif.Canvas{
				iiif.NewCanvas("c1", 10, 10, iiif.ContentResource{ID: "a.png", Type: iiif.TypeImage}),
				own,
			},
			wantIDs:   []string{"c1", "c2"},
			wantTitle: []string{"Sunflowers", "Starry Night"},
			wantDate:  []string{"1888", "1889"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := iiif.Manifest{
				ID:        "m1",
				Type:      iiif.TypeManifest,
				Label:     iiif.Text("Sunflowers"),
				Metadata:  []iiif.MetadataEntry{{Label: iiif.Text("Date"), Value: iiif.Text("1888")}},
				Thumbnail: []iiif.ContentResource{thumb},
				Items:     tt.canvases,
			}
			items, err := ManifestItems(svc, m)
			if err != nil {
				t.Fatalf("ManifestItems failed: %v", err)
			}
			if len(items) != len(tt.wantIDs) {
				t.Fatalf("items: got %d, want %d", len(items), len(tt.wantIDs))
			}
			for i, it := range items {
				if it.ID != tt.wantIDs[i] {
					t.Errorf("item %d id: got %s, want %s", i, it.ID, tt.wantIDs[i])
				}
				if it.Metadata.Title() != tt.wantTitle[i] {
					t.Errorf("item %d title: got %q, want %q", i, it.Metadata.Title(), tt.wantTitle[i])
				}
				if v, _ := it.Metadata.Get(KeyDate); v != tt.wantDate[i] {
					t.Errorf("item %d date: got %q, want %q", i, v, tt.wantDate[i])
				}
				if !it.ThumbnailExists(40) {
					t.Errorf("item %d should fall back to the manifest thumbnail", i)
				}
			}
		})
	}

	if _, err := ManifestItems(svc, iiif.Manifest{ID: "empty"}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("empty manifest should be INPUT, got %v", err)
	}
	bad := iiif.Manifest{ID: "m", Items: []iiif.Canvas{own, {ID: "bare"}}}
	if _, err := ManifestItems(svc, bad); !errors.Is(err, errors.CodeInput) {
		t.Errorf("canvas without body should be INPUT, got %v", err)
	}
}
