package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is the quality used for thumbnails and tiles.
const DefaultJPEGQuality = 85

// Dimensions describes the pixel size of an encoded image.
//
// Orientation is the EXIF orientation tag (1-8) when the source carries one,
// and 0 otherwise. Width and Height are the stored raster size, before any
// orientation is applied.
type Dimensions struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	Orientation int `json:"orientation,omitempty"`
}

// Oriented returns the displayed size: orientations 5-8 rotate by 90 degrees,
// so width and height swap.
func (d Dimensions) Oriented() (width, height int) {
	if d.Orientation >= 5 && d.Orientation <= 8 {
		return d.Height, d.Width
	}
	return d.Width, d.Height
}

// Block is one encoded image to paint at (Left, Top) on a composite canvas.
type Block struct {
	Data []byte
	Top  int
	Left int
}

// BlockError reports a block that could not be decoded during Composite.
type BlockError struct {
	Index int
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %d: %v", e.Index, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// CanvasSpec describes the base canvas blocks are painted onto.
type CanvasSpec struct {
	Width      int
	Height     int
	Background color.Color
}

// TileLayout selects the on-disk layout written by EncodeTileDirectory.
type TileLayout string

const (
	// TileLayoutIIIF writes an IIIF Image API 3 level0 static tile tree with info.json.
	TileLayoutIIIF TileLayout = "iiif"
	// TileLayoutDZI writes a Deep Zoom <name>.dzi descriptor and <name>_files/ pyramid.
	TileLayoutDZI TileLayout = "dzi"
)

// Codec is the default pure-Go pixel codec.
//
// All thumbnails and tiles are re-encoded as JPEG. Composite canvases are
// encoded as PNG so no generation loss is introduced before tiling.
//
// Codec holds no mutable state and is safe for concurrent use.
type Codec struct {
	// JPEGQuality is used for every JPEG this codec writes (1-100).
	JPEGQuality int
}

// NewCodec returns a Codec using DefaultJPEGQuality.
func NewCodec() *Codec {
	return &Codec{JPEGQuality: DefaultJPEGQuality}
}

func (c *Codec) quality() int {
	if c == nil || c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		return DefaultJPEGQuality
	}
	return c.JPEGQuality
}

// Resize decodes data, applies its EXIF orientation, scales it to width
// pixels (height follows the aspect ratio) and returns it as JPEG.
func (c *Codec) Resize(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid resize width %d", width)
	}

	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	resized := imaging.Resize(img, width, 0, imaging.Lanczos)
	return c.encodeJPEG(resized)
}

// Probe reads the image header and returns its dimensions without decoding
// pixel data.
func (c *Codec) Probe(data []byte) (Dimensions, error) {
	info, err := Inspect(data)
	if err != nil {
		return Dimensions{}, err
	}
	return Dimensions{
		Width:       info.Width,
		Height:      info.Height,
		Orientation: info.Orientation,
	}, nil
}

func (c *Codec) encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.quality())); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// decode decodes any registered format and applies EXIF orientation.
func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: empty buffer")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
