package imaging

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"testing"

	"golang.org/x/image/tiff"
)

func TestTileSize(t *testing.T) {
	tests := []struct {
		edge int
		want int
	}{
		{1000, 248},
		{256, 256},
		{100, 100},
		{257, 256},
		{600, 148},
		{512, 256},
		{4096, 256},
		{0, MaxTileEdge},
	}

	for _, tt := range tests {
		got := TileSize(tt.edge)
		if got != tt.want {
			t.Errorf("TileSize(%d): got %d, want %d", tt.edge, got, tt.want)
		}
		if got > MaxTileEdge {
			t.Errorf("TileSize(%d) = %d exceeds %d", tt.edge, got, MaxTileEdge)
		}
	}
}

func TestAlign16(t *testing.T) {
	tests := map[int]int{1: 16, 16: 16, 17: 32, 248: 256, 256: 256}
	for in, want := range tests {
		if got := align16(in); got != want {
			t.Errorf("align16(%d): got %d, want %d", in, got, want)
		}
	}
}

func TestEncodeTiledPyramid(t *testing.T) {
	c := NewCodec()
	src := encodedPNG(t, 100, 70, color.RGBA{10, 200, 30, 255})

	out, err := c.EncodeTiledPyramid(src, TileSize(100), TileSize(70))
	if err != nil {
		t.Fatalf("EncodeTiledPyramid failed: %v", err)
	}

	if !bytes.HasPrefix(out, []byte{'I', 'I', 42, 0}) {
		t.Fatalf("missing little-endian TIFF header: % x", out[:4])
	}

	// The first IFD is full resolution and must decode as a regular TIFF.
	img, err := tiff.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("tiff.Decode failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 70 {
		t.Errorf("level 0 size: got %dx%d, want 100x70", b.Dx(), b.Dy())
	}
	r, g, b := rgb8(img.At(50, 35))
	if r != 10 || g != 200 || b != 30 {
		t.Errorf("pixel: got (%d,%d,%d), want (10,200,30)", r, g, b)
	}
}

func TestEncodeTiledPyramid_Levels(t *testing.T) {
	c := NewCodec()
	src := encodedPNG(t, 300, 100, color.White)

	out, err := c.EncodeTiledPyramid(src, 64, 64)
	if err != nil {
		t.Fatalf("EncodeTiledPyramid failed: %v", err)
	}

	// Walk the IFD chain: 300 -> 150 -> 75 -> 37 wide, so four levels.
	le := binary.LittleEndian
	var widths []uint32
	for off := le.Uint32(out[4:8]); off != 0; {
		n := int(le.Uint16(out[off : off+2]))
		for i := 0; i < n; i++ {
			e := out[int(off)+2+i*12:]
			if le.Uint16(e[0:2]) == tagImageWidth {
				widths = append(widths, le.Uint32(e[8:12]))
			}
		}
		off = le.Uint32(out[int(off)+2+n*12:])
	}

	want := []uint32{300, 150, 75, 37}
	if len(widths) != len(want) {
		t.Fatalf("levels: got %v, want %v", widths, want)
	}
	for i := range want {
		if widths[i] != want[i] {
			t.Errorf("level %d width: got %d, want %d", i, widths[i], want[i])
		}
	}
}

func TestEncodeTiledPyramid_Errors(t *testing.T) {
	c := NewCodec()
	if _, err := c.EncodeTiledPyramid(encodedPNG(t, 8, 8, color.White), 0, 16); err == nil {
		t.Error("zero tile width should fail")
	}
	if _, err := c.EncodeTiledPyramid([]byte("junk"), 16, 16); err == nil {
		t.Error("invalid image should fail")
	}
}
