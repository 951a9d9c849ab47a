package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/fetch"
	"github.com/ironsheep/artgrid/internal/imaging"
	"github.com/ironsheep/artgrid/internal/layout"
	"github.com/ironsheep/artgrid/internal/logging"
	"github.com/ironsheep/artgrid/internal/resource"
)

type mapFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	calls map[string]int
}

func (f *mapFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[location]++
	data, ok := f.files[location]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", location)
	}
	return data, nil
}

type memSaver struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memSaver) Save(ctx context.Context, path string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = data
	return path, nil
}

func pngBytes(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

var cellColors = []color.RGBA{
	{255, 0, 0, 255},
	{0, 255, 0, 255},
	{0, 0, 255, 255},
	{255, 255, 255, 255},
}

// grid2x2 builds a 2x2 layout of 40x20 images at thumbnail width 20. Any
// index listed in missing has no file behind it.
func grid2x2(t *testing.T, missing ...int) (*layout.Layout, *mapFetcher, *memSaver) {
	t.Helper()
	fetcher := &mapFetcher{files: map[string][]byte{}, calls: map[string]int{}}
	saver := &memSaver{files: map[string][]byte{}}
	svc := &resource.Services{
		Fetcher: fetcher,
		Saver:   saver,
		Codec:   imaging.NewCodec(),
		Logger:  logging.Discard(),
	}

	skip := map[int]bool{}
	for _, i := range missing {
		skip[i] = true
	}
	items := make([]*art.Item, 4)
	for i := range items {
		loc := fmt.Sprintf("art/%d.png", i)
		if !skip[i] {
			fetcher.files[loc] = pngBytes(t, 40, 20, cellColors[i])
		}
		it, err := art.FromLocation(svc, "", loc, art.Metadata{{Key: art.KeyTitle, Value: fmt.Sprint(i)}})
		if err != nil {
			t.Fatalf("FromLocation failed: %v", err)
		}
		items[i] = it
	}
	l, err := layout.New(context.Background(), svc, layout.Options{
		ID:             "grid",
		Name:           "grid",
		Array:          [][]*art.Item{{items[0], items[1]}, {items[2], items[3]}},
		ThumbnailWidth: 20,
	})
	if err != nil {
		t.Fatalf("layout.New failed: %v", err)
	}
	return l, fetcher, saver
}

func pixel(t *testing.T, data []byte, x, y int) color.RGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("composite is not a PNG: %v", err)
	}
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func near(a, b color.RGBA) bool {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return d(a.R, b.R) < 16 && d(a.G, b.G) < 16 && d(a.B, b.B) < 16
}

func TestComposite_Offsets(t *testing.T) {
	l, _, _ := grid2x2(t)

	c, err := Composite(context.Background(), l, Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if c.CellWidth != 20 || c.CellHeight != 10 {
		t.Fatalf("cell size: got %dx%d, want 20x10", c.CellWidth, c.CellHeight)
	}
	if c.Width != 2*c.CellWidth || c.Height != 2*c.CellHeight {
		t.Errorf("canvas: got %dx%d", c.Width, c.Height)
	}

	want := [][2]int{{0, 0}, {0, 20}, {10, 0}, {10, 20}}
	if len(c.Blocks) != len(want) {
		t.Fatalf("blocks: got %d, want %d", len(c.Blocks), len(want))
	}
	for i, b := range c.Blocks {
		if b.Top != want[i][0] || b.Left != want[i][1] {
			t.Errorf("block %d: got (%d,%d), want (%d,%d)", i, b.Top, b.Left, want[i][0], want[i][1])
		}
	}
	if len(c.Skipped) != 0 {
		t.Errorf("nothing should be skipped: %+v", c.Skipped)
	}

	for i, at := range [][2]int{{5, 5}, {25, 5}, {5, 15}, {25, 15}} {
		if got := pixel(t, c.Data, at[0], at[1]); !near(got, cellColors[i]) {
			t.Errorf("cell %d pixel: got %v, want %v", i, got, cellColors[i])
		}
	}
	for _, it := range l.Items() {
		if !it.ThumbnailExists(20) {
			t.Errorf("%s should now have a 20px thumbnail", it.SourceName)
		}
	}
}

func TestComposite_SkipsFailedCell(t *testing.T) {
	l, _, _ := grid2x2(t, 1)

	c, err := Composite(context.Background(), l, Options{Background: "#FFFF00"})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if len(c.Blocks) != 3 {
		t.Errorf("blocks: got %d, want 3", len(c.Blocks))
	}
	if len(c.Skipped) != 1 || c.Skipped[0].Row != 0 || c.Skipped[0].Col != 1 || c.Skipped[0].Source != "art/1.png" {
		t.Fatalf("skipped: %+v", c.Skipped)
	}
	if c.Width != 40 || c.Height != 20 {
		t.Errorf("canvas should keep its full size: %dx%d", c.Width, c.Height)
	}
	if got := pixel(t, c.Data, 25, 5); !near(got, color.RGBA{255, 255, 0, 255}) {
		t.Errorf("skipped cell should show the background, got %v", got)
	}
}

// withThumbnail registers a pre-existing width-20 thumbnail for the cell at
// (row, col) whose bytes are data.
func withThumbnail(t *testing.T, l *layout.Layout, fetcher *mapFetcher, row, col int, data []byte) {
	t.Helper()
	for _, cell := range l.Cells() {
		if cell.Row != row || cell.Col != col {
			continue
		}
		loc := fmt.Sprintf("thumbs/%d-%d-20.png", row, col)
		fetcher.files[loc] = data
		r, err := resource.FromLocation(l.Services(), loc)
		if err != nil {
			t.Fatalf("FromLocation failed: %v", err)
		}
		if err := cell.Item.AddThumbnail(20, r); err != nil {
			t.Fatalf("AddThumbnail failed: %v", err)
		}
		return
	}
	t.Fatalf("no cell at (%d,%d)", row, col)
}

func TestComposite_SkipsUndecodableCells(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{"error page", func(t *testing.T) []byte { return []byte("<html>not found</html>") }},
		// Signature and IHDR survive, so the header reads but the pixels do not.
		{"truncated png", func(t *testing.T) []byte { return pngBytes(t, 20, 10, cellColors[3])[:33] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, fetcher, _ := grid2x2(t)
			withThumbnail(t, l, fetcher, 1, 1, tt.data(t))

			c, err := Composite(context.Background(), l, Options{Background: "#FFFF00"})
			if err != nil {
				t.Fatalf("Composite should skip the bad cell, got %v", err)
			}
			if len(c.Blocks) != 3 {
				t.Errorf("blocks: got %d, want 3", len(c.Blocks))
			}
			if len(c.Skipped) != 1 || c.Skipped[0].Row != 1 || c.Skipped[0].Col != 1 {
				t.Fatalf("skipped: %+v", c.Skipped)
			}
			if c.Skipped[0].Source != "art/3.png" {
				t.Errorf("skipped source: got %s", c.Skipped[0].Source)
			}
			for i, at := range [][2]int{{5, 5}, {25, 5}, {5, 15}} {
				if got := pixel(t, c.Data, at[0], at[1]); !near(got, cellColors[i]) {
					t.Errorf("cell %d pixel: got %v, want %v", i, got, cellColors[i])
				}
			}
			if got := pixel(t, c.Data, 25, 15); !near(got, color.RGBA{255, 255, 0, 255}) {
				t.Errorf("skipped cell should show the background, got %v", got)
			}
		})
	}
}

func TestComposite_SkipsInRowMajorOrder(t *testing.T) {
	l, fetcher, _ := grid2x2(t)
	withThumbnail(t, l, fetcher, 1, 0, pngBytes(t, 20, 10, cellColors[2])[:33])
	withThumbnail(t, l, fetcher, 0, 1, []byte("<html>not found</html>"))
	withThumbnail(t, l, fetcher, 0, 0, pngBytes(t, 20, 10, cellColors[0])[:33])

	c, err := Composite(context.Background(), l, Options{})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	want := [][2]int{{0, 0}, {0, 1}, {1, 0}}
	if len(c.Skipped) != len(want) {
		t.Fatalf("skipped: got %+v", c.Skipped)
	}
	for i, s := range c.Skipped {
		if s.Row != want[i][0] || s.Col != want[i][1] {
			t.Errorf("skip %d: got (%d,%d), want (%d,%d)", i, s.Row, s.Col, want[i][0], want[i][1])
		}
	}
	if len(c.Blocks) != 1 || c.Blocks[0].Top != 10 || c.Blocks[0].Left != 20 {
		t.Errorf("blocks: %+v", c.Blocks)
	}
}

func TestComposite_NothingDecodes(t *testing.T) {
	l, fetcher, _ := grid2x2(t)
	for i, cell := range l.Cells() {
		withThumbnail(t, l, fetcher, cell.Row, cell.Col, pngBytes(t, 20, 10, cellColors[i])[:33])
	}
	if _, err := Composite(context.Background(), l, Options{}); !errors.Is(err, errors.CodeResourceUnavailable) {
		t.Errorf("expected RESOURCE_UNAVAILABLE, got %v", err)
	}
}

func TestComposite_SlowCellTimesOut(t *testing.T) {
	images := map[string][]byte{}
	for i := range cellColors {
		images[fmt.Sprintf("/%d.png", i)] = pngBytes(t, 40, 20, cellColors[i])
	}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/2.png" {
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		data, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	svc := &resource.Services{
		Fetcher: fetch.NewClient(100 * time.Millisecond),
		Saver:   &memSaver{files: map[string][]byte{}},
		Codec:   imaging.NewCodec(),
		Logger:  logging.Discard(),
	}
	items := make([]*art.Item, 4)
	for i := range items {
		it, err := art.FromLocation(svc, "", fmt.Sprintf("%s/%d.png", srv.URL, i), nil)
		if err != nil {
			t.Fatalf("FromLocation failed: %v", err)
		}
		items[i] = it
	}
	l, err := layout.New(context.Background(), svc, layout.Options{
		ID:             "slow",
		Array:          [][]*art.Item{{items[0], items[1]}, {items[2], items[3]}},
		ThumbnailWidth: 20,
	})
	if err != nil {
		t.Fatalf("layout.New failed: %v", err)
	}

	c, err := Composite(context.Background(), l, Options{Background: "#FFFF00"})
	if err != nil {
		t.Fatalf("a slow cell should not fail the composite: %v", err)
	}
	if len(c.Skipped) != 1 || c.Skipped[0].Row != 1 || c.Skipped[0].Col != 0 {
		t.Fatalf("skipped: %+v", c.Skipped)
	}
	if len(c.Blocks) != 3 {
		t.Errorf("blocks: got %d, want 3", len(c.Blocks))
	}
	for i, at := range [][2]int{{5, 5}, {25, 5}, {25, 15}} {
		want := cellColors[[]int{0, 1, 3}[i]]
		if got := pixel(t, c.Data, at[0], at[1]); !near(got, want) {
			t.Errorf("pixel %v: got %v, want %v", at, got, want)
		}
	}
	if got := pixel(t, c.Data, 5, 15); !near(got, color.RGBA{255, 255, 0, 255}) {
		t.Errorf("timed out cell should show the background, got %v", got)
	}
}

func TestComposite_RepresentativeFails(t *testing.T) {
	l, _, _ := grid2x2(t, 0)
	c, err := Composite(context.Background(), l, Options{})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if c.CellWidth != 20 || len(c.Skipped) != 1 {
		t.Errorf("cell size should come from the next loaded cell: %dx%d, skipped %d", c.CellWidth, c.CellHeight, len(c.Skipped))
	}
}

func TestComposite_Errors(t *testing.T) {
	l, _, _ := grid2x2(t, 0, 1, 2, 3)
	if _, err := Composite(context.Background(), l, Options{}); !errors.Is(err, errors.CodeResourceUnavailable) {
		t.Errorf("all cells failing: expected RESOURCE_UNAVAILABLE, got %v", err)
	}

	l, _, _ = grid2x2(t)
	if _, err := Composite(context.Background(), l, Options{Background: "not-a-colour"}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("bad background: expected INPUT, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Composite(ctx, l, Options{}); err == nil {
		t.Error("cancelled context should fail")
	}
	if _, err := Composite(context.Background(), nil, Options{}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("nil layout: expected INPUT, got %v", err)
	}
}

func TestComposite_CanvasTooLarge(t *testing.T) {
	grid, _, _ := grid2x2(t)
	tests := []struct {
		name       string
		rows, cols int
	}{
		{"huge", 1, 1 << 50},
		{"just over", 1, 1 << 26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := layout.New(context.Background(), grid.Services(), layout.Options{
				Pool:           grid.Items()[:2],
				NumRows:        tt.rows,
				NumCols:        tt.cols,
				ThumbnailWidth: 20,
			})
			if err != nil {
				t.Fatalf("layout.New failed: %v", err)
			}
			if _, err := Composite(context.Background(), l, Options{}); !errors.Is(err, errors.CodeInput) {
				t.Errorf("expected INPUT, got %v", err)
			}
		})
	}
}

func TestComposite_LoadsEachSourceOnce(t *testing.T) {
	l, fetcher, _ := grid2x2(t)
	if _, err := Composite(context.Background(), l, Options{}); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if _, err := Composite(context.Background(), l, Options{}); err != nil {
		t.Fatalf("second Composite failed: %v", err)
	}
	for loc, n := range fetcher.calls {
		if n != 1 {
			t.Errorf("%s fetched %d times", loc, n)
		}
	}
}

func TestAssemble_TIFF(t *testing.T) {
	l, _, saver := grid2x2(t)

	gc, err := Assemble(context.Background(), l, Options{Kind: resource.KindTIFF, Dir: "out"})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	path := filepath.Join("out", "grid.tif")
	data, ok := saver.files[path]
	if !ok {
		t.Fatalf("expected %s to be written", path)
	}
	if !bytes.HasPrefix(data, []byte("II*\x00")) {
		t.Errorf("output is not a little-endian TIFF")
	}
	if gc.Item.Source().ID() != path {
		t.Errorf("item source: got %s", gc.Item.Source().ID())
	}
	if l.Image() != gc.Item {
		t.Error("composite should be attached to the layout")
	}
	if d, ok := gc.Item.CachedDimensions(); !ok || d.Width != 40 || d.Height != 20 {
		t.Errorf("item dimensions: %+v", d)
	}

	if _, err := Assemble(context.Background(), l, Options{Kind: resource.KindTIFF, Dir: "out"}); !errors.Is(err, errors.CodeStateConflict) {
		t.Errorf("second Assemble: expected STATE_CONFLICT, got %v", err)
	}
}

func TestAssemble_IIIF(t *testing.T) {
	l, _, _ := grid2x2(t)
	dir := t.TempDir()

	gc, err := Assemble(context.Background(), l, Options{Kind: resource.KindIIIF, Dir: dir, BaseURL: "https://example.org/tiles"})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "grid", "info.json")); err != nil {
		t.Errorf("info.json missing: %v", err)
	}

	cr, _, err := gc.Item.Source().ToContentResource(context.Background(), resource.ContentOptions{})
	if err != nil {
		t.Fatalf("ToContentResource failed: %v", err)
	}
	if len(cr.Service) != 1 || cr.Service[0].ID != "https://example.org/tiles/grid" {
		t.Errorf("service: %+v", cr.Service)
	}
}

func TestAssemble_Errors(t *testing.T) {
	l, _, _ := grid2x2(t)
	if _, err := Assemble(context.Background(), l, Options{Kind: "png", Dir: "out"}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("bad kind: expected INPUT, got %v", err)
	}
	if _, err := Assemble(context.Background(), l, Options{}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("no dir: expected INPUT, got %v", err)
	}
	if l.Image() != nil {
		t.Error("failed assembly should not attach an image")
	}
}
