package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Composite paints every block at its (Left, Top) offset onto a solid canvas
// of spec's size and returns the canvas encoded as PNG.
//
// Blocks are painted in slice order; where blocks overlap the later one wins.
// Blocks that extend past the canvas are clipped. A block that fails to
// decode aborts the composite with a *BlockError naming its index, so the
// caller can drop it and retry.
func (c *Codec) Composite(spec CanvasSpec, blocks []Block) ([]byte, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", spec.Width, spec.Height)
	}

	bg := spec.Background
	if bg == nil {
		bg = color.Black
	}
	canvas := imaging.New(spec.Width, spec.Height, bg)

	for i, b := range blocks {
		img, err := decode(b.Data)
		if err != nil {
			return nil, &BlockError{Index: i, Err: fmt.Errorf("at (%d,%d): %w", b.Top, b.Left, err)}
		}
		bounds := img.Bounds()
		dst := image.Rect(b.Left, b.Top, b.Left+bounds.Dx(), b.Top+bounds.Dy())
		// draw.Draw paints in place; imaging.Paste would clone the whole canvas per block.
		draw.Draw(canvas, dst, img, bounds.Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode canvas: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseBackground parses a "#RRGGBB" or "#RGB" hex colour. An empty string
// yields opaque black.
func ParseBackground(hex string) (color.Color, error) {
	hex = strings.TrimSpace(hex)
	if hex == "" {
		return color.Black, nil
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("invalid background colour %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
