package imaging

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Tile directory parameters.
const (
	IIIFTileSize = 256
	DZITileSize  = 254
	DZIOverlap   = 1
)

// IIIFInfo is the info.json document of an IIIF Image API 3 level0 service.
type IIIFInfo struct {
	Context  string     `json:"@context"`
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Protocol string     `json:"protocol"`
	Profile  string     `json:"profile"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Sizes    []IIIFSize `json:"sizes,omitempty"`
	Tiles    []IIIFTile `json:"tiles,omitempty"`
}

// IIIFSize is one pre-rendered full-image size.
type IIIFSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IIIFTile advertises the tile edge and the scale factors it exists at.
type IIIFTile struct {
	Width        int   `json:"width"`
	Height       int   `json:"height,omitempty"`
	ScaleFactors []int `json:"scaleFactors"`
}

// dziImage is the Deep Zoom descriptor.
type dziImage struct {
	XMLName  xml.Name `xml:"Image"`
	Xmlns    string   `xml:"xmlns,attr"`
	Format   string   `xml:"Format,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	TileSize int      `xml:"TileSize,attr"`
	Size     dziSize  `xml:"Size"`
}

type dziSize struct {
	Width  int `xml:"Width,attr"`
	Height int `xml:"Height,attr"`
}

// EncodeTileDirectory writes data as a static tile tree under dir.
//
// For TileLayoutIIIF, dir itself becomes the image service root: it receives
// info.json (with id set to baseID) and {region}/{size}/0/default.jpg tiles.
// The returned path is dir.
//
// For TileLayoutDZI, dir is used as "<dir>.dzi" plus "<dir>_files/<level>/<col>_<row>.jpg".
// The returned path is the .dzi descriptor.
//
// The context is checked between tiles so a cancelled job stops writing.
func (c *Codec) EncodeTileDirectory(ctx context.Context, data []byte, layout TileLayout, dir, baseID string) (string, error) {
	img, err := decode(data)
	if err != nil {
		return "", err
	}

	switch layout {
	case TileLayoutIIIF:
		return dir, c.writeIIIF(ctx, img, dir, baseID)
	case TileLayoutDZI:
		return c.writeDZI(ctx, img, dir)
	default:
		return "", fmt.Errorf("unknown tile layout %q", layout)
	}
}

func (c *Codec) writeIIIF(ctx context.Context, img image.Image, dir, baseID string) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	ts := IIIFTileSize

	var scales []int
	var sizes []IIIFSize
	for sf := 1; ; sf *= 2 {
		scales = append(scales, sf)
		sizes = append(sizes, IIIFSize{Width: ceilDiv(w, sf), Height: ceilDiv(h, sf)})
		if ts*sf >= w && ts*sf >= h {
			break
		}
	}

	for _, sf := range scales {
		region := ts * sf
		for y := 0; y < h; y += region {
			for x := 0; x < w; x += region {
				if err := ctx.Err(); err != nil {
					return err
				}
				rw, rh := min(region, w-x), min(region, h-y)
				sw, sh := ceilDiv(rw, sf), ceilDiv(rh, sf)

				tile := imaging.Crop(img, image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+rw, b.Min.Y+y+rh))
				if sf > 1 {
					tile = imaging.Resize(tile, sw, sh, imaging.Box)
				}
				path := filepath.Join(dir,
					fmt.Sprintf("%d,%d,%d,%d", x, y, rw, rh),
					fmt.Sprintf("%d,%d", sw, sh), "0", "default.jpg")
				if err := c.writeJPEG(path, tile); err != nil {
					return err
				}
			}
		}
	}

	// Pre-rendered full sizes, smallest last, so viewers can show a preview.
	for _, s := range sizes {
		full := imaging.Resize(img, s.Width, s.Height, imaging.Box)
		path := filepath.Join(dir, "full", fmt.Sprintf("%d,%d", s.Width, s.Height), "0", "default.jpg")
		if err := c.writeJPEG(path, full); err != nil {
			return err
		}
	}

	info := IIIFInfo{
		Context:  "http://iiif.io/api/image/3/context.json",
		ID:       strings.TrimRight(baseID, "/"),
		Type:     "ImageService3",
		Protocol: "http://iiif.io/api/image",
		Profile:  "level0",
		Width:    w,
		Height:   h,
		Sizes:    sizes,
		Tiles:    []IIIFTile{{Width: ts, Height: ts, ScaleFactors: scales}},
	}
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode info.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "info.json"), raw, 0644); err != nil {
		return fmt.Errorf("failed to write info.json: %w", err)
	}
	return nil
}

func (c *Codec) writeDZI(ctx context.Context, img image.Image, base string) (string, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	maxLevel := int(math.Ceil(math.Log2(float64(max(w, h)))))
	filesDir := base + "_files"

	for level := maxLevel; level >= 0; level-- {
		scale := math.Pow(2, float64(maxLevel-level))
		lw := max(1, int(math.Ceil(float64(w)/scale)))
		lh := max(1, int(math.Ceil(float64(h)/scale)))

		var lvl image.Image = img
		if lw != w || lh != h {
			lvl = imaging.Resize(img, lw, lh, imaging.Lanczos)
		}
		lb := lvl.Bounds()

		for row := 0; row*DZITileSize < lh; row++ {
			for col := 0; col*DZITileSize < lw; col++ {
				if err := ctx.Err(); err != nil {
					return "", err
				}
				x0 := col*DZITileSize - overlapBefore(col)
				y0 := row*DZITileSize - overlapBefore(row)
				x1 := min(lw, (col+1)*DZITileSize+DZIOverlap)
				y1 := min(lh, (row+1)*DZITileSize+DZIOverlap)

				tile := imaging.Crop(lvl, image.Rect(lb.Min.X+x0, lb.Min.Y+y0, lb.Min.X+x1, lb.Min.Y+y1))
				path := filepath.Join(filesDir, fmt.Sprint(level), fmt.Sprintf("%d_%d.jpg", col, row))
				if err := c.writeJPEG(path, tile); err != nil {
					return "", err
				}
			}
		}
	}

	desc := dziImage{
		Xmlns:    "http://schemas.microsoft.com/deepzoom/2008",
		Format:   "jpg",
		Overlap:  DZIOverlap,
		TileSize: DZITileSize,
		Size:     dziSize{Width: w, Height: h},
	}
	raw, err := xml.MarshalIndent(desc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode dzi descriptor: %w", err)
	}
	dziPath := base + ".dzi"
	if err := os.MkdirAll(filepath.Dir(dziPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(dziPath, append([]byte(xml.Header), raw...), 0644); err != nil {
		return "", fmt.Errorf("failed to write dzi descriptor: %w", err)
	}
	return dziPath, nil
}

func overlapBefore(index int) int {
	if index == 0 {
		return 0
	}
	return DZIOverlap
}

func (c *Codec) writeJPEG(path string, img image.Image) error {
	data, err := c.encodeJPEG(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tile directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write tile: %w", err)
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
