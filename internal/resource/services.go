package resource

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/ironsheep/artgrid/internal/imaging"
)

// Fetcher resolves a location (path or URL) to its bytes.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Saver persists bytes and returns the confirmed location.
type Saver interface {
	Save(ctx context.Context, path string, data []byte) (string, error)
}

// Codec is the pixel codec a resource delegates to.
type Codec interface {
	Resize(data []byte, width int) ([]byte, error)
	Probe(data []byte) (imaging.Dimensions, error)
	EncodeTiledPyramid(data []byte, tileWidth, tileHeight int) ([]byte, error)
	EncodeTileDirectory(ctx context.Context, data []byte, layout imaging.TileLayout, dir, baseID string) (string, error)
	Composite(spec imaging.CanvasSpec, blocks []imaging.Block) ([]byte, error)
}

// Services bundles the collaborators every resource operation needs.
//
// One Services value is typically built per CLI invocation or server
// session and shared by every resource created during it.
type Services struct {
	Fetcher Fetcher
	Saver   Saver
	Codec   Codec

	// Logger overrides the context logger when set.
	Logger *log.Logger
}

var _ Codec = (*imaging.Codec)(nil)
