package imaging

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/transform"
	"github.com/klauspost/compress/zlib"
)

// TIFF tag numbers and field types used by the pyramid writer.
const (
	tagNewSubfileType  = 254
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagSamplesPerPixel = 277
	tagPlanarConfig    = 284
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325

	typeShort = 3
	typeLong  = 4

	compressionDeflate = 8
	photometricRGB     = 2
	subfileReduced     = 1
)

// MaxTileEdge bounds the tile size chosen by TileSize.
const MaxTileEdge = 256

// TileSize picks a tile edge for an image edge of the given length.
//
// Edges no longer than MaxTileEdge are used as is (one tile spans the
// image). Longer edges are aligned down to a multiple of 16 and halved until
// they fit, which keeps tiles bounded on large composites:
//
//	TileSize(1000) = 248   // 1000 -> 992 -> 496 -> 248
func TileSize(edge int) int {
	if edge <= 0 {
		return MaxTileEdge
	}
	if edge <= MaxTileEdge {
		return edge
	}
	t := edge - edge%16
	for t > MaxTileEdge {
		t /= 2
	}
	return t
}

// EncodeTiledPyramid encodes data as a tiled, deflate-compressed RGB TIFF with
// one IFD per resolution level. Level 0 is full resolution; each following
// level halves both edges until the level fits in a single tile.
//
// TIFF requires tile edges that are multiples of 16, so tileWidth and
// tileHeight are rounded up to the next multiple before use.
func (c *Codec) EncodeTiledPyramid(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	if tileWidth <= 0 || tileHeight <= 0 {
		return nil, fmt.Errorf("invalid tile size %dx%d", tileWidth, tileHeight)
	}
	tw, th := align16(tileWidth), align16(tileHeight)

	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	levels := []*image.RGBA{clone.AsRGBA(img)}
	for {
		last := levels[len(levels)-1].Bounds()
		if last.Dx() <= tw && last.Dy() <= th {
			break
		}
		w, h := max(1, last.Dx()/2), max(1, last.Dy()/2)
		levels = append(levels, transform.Resize(levels[len(levels)-1], w, h, transform.Linear))
	}

	return writePyramid(levels, tw, th)
}

func align16(n int) int {
	return (n + 15) / 16 * 16
}

type levelLayout struct {
	width, height int
	offsets       []uint32
	counts        []uint32
}

// writePyramid lays out: header, all compressed tiles, then one IFD per level
// (each followed by its out-of-line arrays).
func writePyramid(levels []*image.RGBA, tw, th int) ([]byte, error) {
	var buf bytes.Buffer
	le := binary.LittleEndian

	// Header; the first IFD offset is patched once the IFDs are placed.
	buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	layouts := make([]levelLayout, len(levels))
	tile := make([]byte, tw*th*3)
	for i, lvl := range levels {
		b := lvl.Bounds()
		l := levelLayout{width: b.Dx(), height: b.Dy()}
		across := (l.width + tw - 1) / tw
		down := (l.height + th - 1) / th

		for ty := 0; ty < down; ty++ {
			for tx := 0; tx < across; tx++ {
				fillTile(tile, lvl, tx*tw, ty*th, tw, th)

				start := buf.Len()
				zw := zlib.NewWriter(&buf)
				if _, err := zw.Write(tile); err != nil {
					return nil, fmt.Errorf("failed to compress tile: %w", err)
				}
				if err := zw.Close(); err != nil {
					return nil, fmt.Errorf("failed to compress tile: %w", err)
				}
				l.offsets = append(l.offsets, uint32(start))
				l.counts = append(l.counts, uint32(buf.Len()-start))
			}
		}
		layouts[i] = l
		if buf.Len() > math.MaxUint32 {
			return nil, fmt.Errorf("pyramid exceeds 4 GiB classic TIFF limit")
		}
	}

	// Position of the previous "next IFD" pointer, starting with the header slot.
	nextPtr := 4
	for i, l := range layouts {
		if buf.Len()%2 == 1 {
			buf.WriteByte(0)
		}
		ifdStart := buf.Len()
		le.PutUint32(buf.Bytes()[nextPtr:nextPtr+4], uint32(ifdStart))

		const entries = 12
		// Out-of-line data follows the IFD: bits-per-sample, offsets, counts.
		extra := ifdStart + 2 + entries*12 + 4
		bitsAt := extra
		offsetsAt := bitsAt + 6
		countsAt := offsetsAt + 4*len(l.offsets)

		subfile := uint32(0)
		if i > 0 {
			subfile = subfileReduced
		}
		n := uint32(len(l.offsets))

		ifd := make([]byte, 2+entries*12+4)
		le.PutUint16(ifd[0:2], entries)
		e := ifd[2:]
		putEntry(e[0:], tagNewSubfileType, typeLong, 1, subfile)
		putEntry(e[12:], tagImageWidth, typeLong, 1, uint32(l.width))
		putEntry(e[24:], tagImageLength, typeLong, 1, uint32(l.height))
		putEntry(e[36:], tagBitsPerSample, typeShort, 3, uint32(bitsAt))
		putEntry(e[48:], tagCompression, typeShort, 1, compressionDeflate)
		putEntry(e[60:], tagPhotometric, typeShort, 1, photometricRGB)
		putEntry(e[72:], tagSamplesPerPixel, typeShort, 1, 3)
		putEntry(e[84:], tagPlanarConfig, typeShort, 1, 1)
		putEntry(e[96:], tagTileWidth, typeLong, 1, uint32(tw))
		putEntry(e[108:], tagTileLength, typeLong, 1, uint32(th))
		if n == 1 {
			putEntry(e[120:], tagTileOffsets, typeLong, 1, l.offsets[0])
			putEntry(e[132:], tagTileByteCounts, typeLong, 1, l.counts[0])
		} else {
			putEntry(e[120:], tagTileOffsets, typeLong, n, uint32(offsetsAt))
			putEntry(e[132:], tagTileByteCounts, typeLong, n, uint32(countsAt))
		}
		buf.Write(ifd)
		nextPtr = ifdStart + 2 + entries*12

		// BitsPerSample 8,8,8
		buf.Write([]byte{8, 0, 8, 0, 8, 0})
		if n > 1 {
			word := make([]byte, 4)
			for _, off := range l.offsets {
				le.PutUint32(word, off)
				buf.Write(word)
			}
			for _, cnt := range l.counts {
				le.PutUint32(word, cnt)
				buf.Write(word)
			}
		}
	}

	if buf.Len() > math.MaxUint32 {
		return nil, fmt.Errorf("pyramid exceeds 4 GiB classic TIFF limit")
	}
	return buf.Bytes(), nil
}

// putEntry writes one 12-byte IFD entry. SHORT values are left-justified in
// the value field as the TIFF spec requires.
func putEntry(b []byte, tag, typ uint16, count, value uint32) {
	le := binary.LittleEndian
	le.PutUint16(b[0:2], tag)
	le.PutUint16(b[2:4], typ)
	le.PutUint32(b[4:8], count)
	if typ == typeShort && count == 1 {
		le.PutUint16(b[8:10], uint16(value))
		le.PutUint16(b[10:12], 0)
		return
	}
	le.PutUint32(b[8:12], value)
}

// fillTile copies the RGB samples of the tile at (x0, y0) into dst, padding
// with black past the image edge.
func fillTile(dst []byte, src *image.RGBA, x0, y0, tw, th int) {
	b := src.Bounds()
	for i := range dst {
		dst[i] = 0
	}
	for y := 0; y < th; y++ {
		sy := y0 + y
		if sy >= b.Dy() {
			break
		}
		for x := 0; x < tw; x++ {
			sx := x0 + x
			if sx >= b.Dx() {
				break
			}
			si := src.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			di := (y*tw + x) * 3
			dst[di] = src.Pix[si]
			dst[di+1] = src.Pix[si+1]
			dst[di+2] = src.Pix[si+2]
		}
	}
}
