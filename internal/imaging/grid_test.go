package imaging

import (
	"bytes"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	return img
}

func rgb8(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func TestComposite_PlacesBlocks(t *testing.T) {
	c := NewCodec()
	red := encodedPNG(t, 10, 8, color.RGBA{255, 0, 0, 255})
	green := encodedPNG(t, 10, 8, color.RGBA{0, 255, 0, 255})
	blue := encodedPNG(t, 10, 8, color.RGBA{0, 0, 255, 255})

	// 2x2 grid with the bottom-right cell missing.
	blocks := []Block{
		{Data: red, Top: 0, Left: 0},
		{Data: green, Top: 0, Left: 10},
		{Data: blue, Top: 8, Left: 0},
	}
	out, err := c.Composite(CanvasSpec{Width: 20, Height: 16, Background: color.White}, blocks)
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}

	img := decodePNG(t, out)
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 16 {
		t.Fatalf("canvas size: got %dx%d, want 20x16", b.Dx(), b.Dy())
	}

	tests := []struct {
		name    string
		x, y    int
		r, g, b uint8
	}{
		{"top-left red", 5, 4, 255, 0, 0},
		{"top-right green", 15, 4, 0, 255, 0},
		{"bottom-left blue", 5, 12, 0, 0, 255},
		{"missing cell shows background", 15, 12, 255, 255, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := rgb8(img.At(tt.x, tt.y))
			if r != tt.r || g != tt.g || b != tt.b {
				t.Errorf("pixel (%d,%d): got (%d,%d,%d), want (%d,%d,%d)", tt.x, tt.y, r, g, b, tt.r, tt.g, tt.b)
			}
		})
	}
}

func TestComposite_ClipsOverflow(t *testing.T) {
	c := NewCodec()
	big := encodedPNG(t, 30, 30, color.RGBA{0, 0, 255, 255})

	out, err := c.Composite(CanvasSpec{Width: 20, Height: 20}, []Block{{Data: big, Top: 10, Left: 10}})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	img := decodePNG(t, out)
	if r, g, b := rgb8(img.At(0, 0)); r != 0 || g != 0 || b != 0 {
		t.Errorf("default background should be black, got (%d,%d,%d)", r, g, b)
	}
	if _, _, b := rgb8(img.At(19, 19)); b != 255 {
		t.Errorf("clipped block should still paint inside the canvas, got blue=%d", b)
	}
}

func TestComposite_Errors(t *testing.T) {
	c := NewCodec()
	if _, err := c.Composite(CanvasSpec{Width: 0, Height: 10}, nil); err == nil {
		t.Error("Composite should reject an empty canvas")
	}
	good := encodedPNG(t, 2, 2, color.White)
	blocks := []Block{{Data: good}, {Data: []byte("garbage"), Top: 2}}
	_, err := c.Composite(CanvasSpec{Width: 10, Height: 10}, blocks)
	var be *BlockError
	if !stderrors.As(err, &be) {
		t.Fatalf("undecodable block: expected *BlockError, got %v", err)
	}
	if be.Index != 1 {
		t.Errorf("BlockError index: got %d, want 1", be.Index)
	}
}

func TestParseBackground(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b uint8
		wantErr bool
	}{
		{"#FF0000", 255, 0, 0, false},
		{"00ff00", 0, 255, 0, false},
		{"#fff", 255, 255, 255, false},
		{"", 0, 0, 0, false},
		{"#GG0000", 0, 0, 0, true},
		{"#12345", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseBackground(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseBackground(%q) should fail", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBackground(%q) failed: %v", tt.in, err)
			}
			r, g, b := rgb8(c)
			if r != tt.r || g != tt.g || b != tt.b {
				t.Errorf("got (%d,%d,%d), want (%d,%d,%d)", r, g, b, tt.r, tt.g, tt.b)
			}
		})
	}
}
