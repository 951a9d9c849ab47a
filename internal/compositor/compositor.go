// Package compositor tiles a layout's thumbnails into one composite image.
//
// Every cell is loaded concurrently, bounded by Options.Concurrency, and
// painted at (row*cellHeight, col*cellWidth). Cell size comes from one
// representative thumbnail; all thumbnails of a layout are assumed to share
// it.
//
// A cell whose thumbnail cannot be fetched, generated or decoded is skipped: the
// failure is logged at warn level, the cell is left as background and it is
// reported in Canvas.Skipped. Only a failure that leaves nothing to composite
// (or a cancelled context) fails the whole call.
package compositor

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/imaging"
	"github.com/ironsheep/artgrid/internal/layout"
	"github.com/ironsheep/artgrid/internal/logging"
	"github.com/ironsheep/artgrid/internal/resource"
)

// DefaultConcurrency bounds cell loads when Options.Concurrency is 0.
const DefaultConcurrency = 8

// MaxCanvasPixels caps the area of a composite canvas.
const MaxCanvasPixels = 1 << 30

// Options configures Composite and Assemble.
type Options struct {
	// Background is a "#RRGGBB" hex colour; black when empty.
	Background  string
	Concurrency int

	// Kind, Dir and BaseURL select the tiled output written by Assemble.
	Kind    resource.OutputKind
	Dir     string
	BaseURL string

	// Logger overrides the context logger when set.
	Logger *log.Logger
}

// Skip records a cell left out of the composite.
type Skip struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// Canvas is the composite of a layout's thumbnails, encoded as PNG.
type Canvas struct {
	Data       []byte
	Width      int
	Height     int
	CellWidth  int
	CellHeight int
	// Blocks are the painted cells in row-major order.
	Blocks  []imaging.Block
	Skipped []Skip
}

type cellResult struct {
	data []byte
	w, h int
	err  error
}

// Composite loads the layout's thumbnail of width l.ThumbnailWidth for every
// cell (generating it in memory when absent) and paints them onto one canvas
// of cellWidth*NumCols by cellHeight*NumRows.
func Composite(ctx context.Context, l *layout.Layout, opts Options) (*Canvas, error) {
	if l == nil || l.Len() == 0 {
		return nil, errors.Input("layout has no cells to composite")
	}
	bg, err := imaging.ParseBackground(opts.Background)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "background")
	}
	svc := l.Services()
	if svc == nil || svc.Codec == nil {
		return nil, errors.New(errors.CodeInternal, "layout has no codec configured")
	}
	logger := logging.Pick(ctx, opts.Logger)
	progress := logging.NewProgress(logger)

	cells := l.Cells()
	results := make([]cellResult, len(cells))

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, cell := range cells {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			results[i] = loadCell(gctx, svc.Codec, cell, l.ThumbnailWidth)
			return nil
		})
	}
	// Cells never return errors, so Wait only joins.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, errors.Unavailable(err, "composite of layout %s cancelled", l.ID)
	}

	cellW, cellH, err := cellSize(results)
	if err != nil {
		return nil, errors.Wrap(errors.CodeResourceUnavailable, err, "layout %s", l.ID)
	}

	if l.NumCols > MaxCanvasPixels/cellW || l.NumRows > MaxCanvasPixels/cellH ||
		cellW*l.NumCols > MaxCanvasPixels/(cellH*l.NumRows) {
		return nil, errors.Input("layout %s: a %dx%d grid of %dx%d cells exceeds %d pixels",
			l.ID, l.NumRows, l.NumCols, cellW, cellH, MaxCanvasPixels)
	}

	c := &Canvas{
		Width:      cellW * l.NumCols,
		Height:     cellH * l.NumRows,
		CellWidth:  cellW,
		CellHeight: cellH,
		Blocks:     make([]imaging.Block, 0, len(cells)),
	}
	skip := func(i int, reason error) {
		cell := cells[i]
		logger.Warn("skipping cell", "row", cell.Row, "col", cell.Col, "source", cell.Item.Source().ID(), "err", reason)
		c.Skipped = append(c.Skipped, Skip{
			Row:    cell.Row,
			Col:    cell.Col,
			Source: cell.Item.Source().ID(),
			Reason: reason.Error(),
		})
	}

	// blockCell maps each block back to the cell it paints.
	blockCell := make([]int, 0, len(cells))
	for i, cell := range cells {
		if res := results[i]; res.err != nil {
			skip(i, res.err)
			continue
		}
		c.Blocks = append(c.Blocks, imaging.Block{
			Data: results[i].data,
			Top:  cell.Row * cellH,
			Left: cell.Col * cellW,
		})
		blockCell = append(blockCell, i)
	}

	spec := imaging.CanvasSpec{Width: c.Width, Height: c.Height, Background: bg}
	for {
		c.Data, err = svc.Codec.Composite(spec, c.Blocks)
		if err == nil {
			break
		}
		// A header that reads fine can still hide a body that does not
		// decode. Drop that block and paint the rest.
		var be *imaging.BlockError
		if !stderrors.As(err, &be) || be.Index < 0 || be.Index >= len(c.Blocks) {
			return nil, errors.Wrap(errors.CodeInternal, err, "composite layout %s", l.ID)
		}
		skip(blockCell[be.Index], fmt.Errorf("failed to decode thumbnail: %w", be.Err))
		c.Blocks = slices.Delete(c.Blocks, be.Index, be.Index+1)
		blockCell = slices.Delete(blockCell, be.Index, be.Index+1)
		if len(c.Blocks) == 0 {
			return nil, errors.New(errors.CodeResourceUnavailable, "layout %s: no cell thumbnail could be decoded", l.ID)
		}
	}
	slices.SortFunc(c.Skipped, func(a, b Skip) int {
		return cmp.Or(cmp.Compare(a.Row, b.Row), cmp.Compare(a.Col, b.Col))
	})

	progress.Done("composited layout", "id", l.ID, "width", c.Width, "height", c.Height,
		"cells", len(c.Blocks), "skipped", len(c.Skipped))
	return c, nil
}

// loadCell loads one cell's thumbnail and reads its size from the header.
// Bytes that are not an image, or an image with no size, fail the cell.
func loadCell(ctx context.Context, codec resource.Codec, cell layout.Cell, width int) cellResult {
	data, err := cell.Item.LoadOrCreateThumbnail(ctx, width)
	if err != nil {
		return cellResult{err: err}
	}
	d, err := codec.Probe(data)
	if err != nil {
		return cellResult{err: fmt.Errorf("failed to read thumbnail header: %w", err)}
	}
	w, h := d.Oriented()
	if w <= 0 || h <= 0 {
		return cellResult{err: fmt.Errorf("thumbnail of %s has no size", cell.Item.SourceName)}
	}
	return cellResult{data: data, w: w, h: h}
}

// cellSize takes the size of the first loaded thumbnail.
func cellSize(results []cellResult) (int, int, error) {
	for _, res := range results {
		if res.err == nil {
			return res.w, res.h, nil
		}
	}
	return 0, 0, fmt.Errorf("no cell thumbnail could be loaded")
}

// GridComposite is the assembled image of a layout: an art item pointing at
// the tiled output, plus the canvas it was encoded from.
type GridComposite struct {
	Item   *art.Item
	Canvas *Canvas
}

// Assemble composites the layout, writes the canvas as opts.Kind output named
// after the layout and attaches the result to the layout. A layout that
// already has an image fails with CodeStateConflict before any work is done.
func Assemble(ctx context.Context, l *layout.Layout, opts Options) (*GridComposite, error) {
	if l == nil {
		return nil, errors.Input("layout is required")
	}
	if l.Image() != nil {
		return nil, errors.Conflict("layout %s already has an image", l.ID)
	}
	if opts.Kind == "" {
		opts.Kind = resource.KindTIFF
	}
	if _, err := resource.ParseKind(string(opts.Kind)); err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		return nil, errors.Input("an output directory is required to assemble layout %s", l.ID)
	}

	canvas, err := Composite(ctx, l, opts)
	if err != nil {
		return nil, err
	}

	svc := l.Services()
	buf, err := resource.FromBuffer(svc, canvas.Data)
	if err != nil {
		return nil, err
	}
	buf.SetDimensions(imaging.Dimensions{Width: canvas.Width, Height: canvas.Height})

	out, err := buf.GenerateImage(logging.WithLogger(ctx, logging.Pick(ctx, opts.Logger)), resource.ImageOptions{
		Kind:    opts.Kind,
		Dir:     opts.Dir,
		Name:    l.Name,
		BaseURL: opts.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	item, err := art.New(svc, l.ID+"/image", out, art.Metadata{{Key: art.KeyTitle, Value: l.Name}})
	if err != nil {
		return nil, err
	}
	item.SetDimensions(imaging.Dimensions{Width: canvas.Width, Height: canvas.Height})
	if err := l.AttachImage(item); err != nil {
		return nil, err
	}
	return &GridComposite{Item: item, Canvas: canvas}, nil
}
