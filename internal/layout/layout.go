// Package layout arranges art items into a grid.
//
// A Layout is built either from a caller-supplied 2-D array, which must be
// rectangular, or by random placement from an unordered pool. Random
// placement sizes the grid from a width/height ratio (or explicit counts),
// draws pool items without replacement and fills cells row-major; when the
// pool does not fill the grid, the final row is left short rather than
// padded.
package layout

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/logging"
	"github.com/ironsheep/artgrid/internal/resource"
)

// DefaultRatio is the grid width/height ratio used when neither a ratio nor
// explicit counts are given.
const DefaultRatio = 9.0 / 16.0

// DefaultThumbnailWidth is the cell width when Options.ThumbnailWidth is 0.
const DefaultThumbnailWidth = 256

// Layout is a grid of art items.
type Layout struct {
	ID   string
	Name string
	// Array holds rows of cells, row-major. Every row but the last has
	// NumCols items.
	Array          [][]*art.Item
	NumRows        int
	NumCols        int
	ThumbnailWidth int

	svc *resource.Services

	mu    sync.Mutex
	image *art.Item
}

// Options configures New. Exactly one of Array and Pool must be set.
type Options struct {
	ID   string
	Name string

	// Array places items directly; its shape gives the dimensions.
	Array [][]*art.Item

	// Pool is placed randomly. Ratio and NumRows/NumCols are mutually
	// exclusive; with neither, DefaultRatio applies.
	Pool    []*art.Item
	NumRows int
	NumCols int
	Ratio   float64

	ThumbnailWidth int

	// Rand drives random placement; nil uses the shared source.
	Rand *rand.Rand
}

// Cell is one occupied grid position.
type Cell struct {
	Row  int
	Col  int
	Item *art.Item
}

// New builds a layout from opts.
func New(ctx context.Context, svc *resource.Services, opts Options) (*Layout, error) {
	if opts.ThumbnailWidth < 0 {
		return nil, errors.Input("thumbnail width must be positive, got %d", opts.ThumbnailWidth)
	}
	if opts.ThumbnailWidth == 0 {
		opts.ThumbnailWidth = DefaultThumbnailWidth
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Name == "" {
		opts.Name = "layout-" + opts.ID[:min(8, len(opts.ID))]
	}

	l := &Layout{
		ID:             opts.ID,
		Name:           opts.Name,
		ThumbnailWidth: opts.ThumbnailWidth,
		svc:            svc,
	}

	switch {
	case opts.Array != nil && opts.Pool != nil:
		return nil, errors.Input("give either an array or a pool, not both")
	case opts.Array != nil:
		if opts.NumRows != 0 || opts.NumCols != 0 {
			return nil, errors.Input("row and column counts are inferred from the array and must not be given")
		}
		if opts.Ratio != 0 {
			return nil, errors.Input("a ratio only applies to random placement")
		}
		if err := l.setArray(opts.Array); err != nil {
			return nil, err
		}
	case opts.Pool != nil:
		if err := l.place(opts); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Input("a layout needs an array or a pool of art items")
	}

	logging.Pick(ctx, svcLogger(svc)).Debug("built layout",
		"id", l.ID, "rows", l.NumRows, "cols", l.NumCols, "items", l.Len())
	return l, nil
}

func (l *Layout) setArray(array [][]*art.Item) error {
	if len(array) == 0 || len(array[0]) == 0 {
		return errors.Input("layout array is empty")
	}
	cols := len(array[0])
	for r, row := range array {
		if len(row) != cols {
			return errors.Input("layout array is jagged: row %d has %d cells, want %d", r, len(row), cols)
		}
		for c, it := range row {
			if it == nil {
				return errors.Input("layout array cell (%d,%d) is empty", r, c)
			}
		}
	}
	l.Array = array
	l.NumRows = len(array)
	l.NumCols = cols
	return nil
}

func (l *Layout) place(opts Options) error {
	n := len(opts.Pool)
	if n == 0 {
		return errors.Input("art pool is empty")
	}
	for i, it := range opts.Pool {
		if it == nil {
			return errors.Input("art pool item %d is nil", i)
		}
	}

	explicit := opts.NumRows != 0 || opts.NumCols != 0
	var rows, cols int
	switch {
	case explicit && opts.Ratio != 0:
		return errors.Input("give either a ratio or row and column counts, not both")
	case explicit:
		if opts.NumRows <= 0 || opts.NumCols <= 0 {
			return errors.Input("row and column counts must both be positive, got %dx%d", opts.NumRows, opts.NumCols)
		}
		if opts.NumRows > math.MaxInt/opts.NumCols {
			return errors.Input("a %dx%d grid has too many cells", opts.NumRows, opts.NumCols)
		}
		if opts.NumRows*opts.NumCols < n {
			return errors.Input("a %dx%d grid cannot hold %d items", opts.NumRows, opts.NumCols, n)
		}
		rows, cols = opts.NumRows, opts.NumCols
	default:
		ratio := opts.Ratio
		if ratio == 0 {
			ratio = DefaultRatio
		}
		if ratio < 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			return errors.Input("ratio must be positive, got %g", ratio)
		}
		rows, cols = GridSize(n, ratio)
	}

	l.Array = fill(opts.Pool, rows, cols, intn(opts.Rand))
	// Explicit counts may leave whole rows unfilled; those are not kept.
	l.NumRows = len(l.Array)
	l.NumCols = cols
	return nil
}

// GridSize returns the rows and columns for n items at ratio (width/height).
//
// It starts from height = ceil(sqrt(n/ratio)) and width = ceil(height*ratio),
// shrinks width by up to 2 and height by up to 1 while the grid still holds n
// items, and then drops trailing rows that would stay entirely empty. The
// result always satisfies rows*cols >= n and rows*cols-n < cols.
func GridSize(n int, ratio float64) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	h := int(math.Ceil(math.Sqrt(float64(n) / ratio)))
	w := max(1, int(math.Ceil(float64(h)*ratio)))

	for i := 0; i < 2 && (w-1)*h >= n; i++ {
		w--
	}
	// Covers the single height shrink and any fully empty trailing rows.
	for h > 1 && w*(h-1) >= n {
		h--
	}
	return h, w
}

// fill draws every pool item exactly once, uniformly at random, into
// row-major cells. A drawn index that was already used is redrawn.
func fill(pool []*art.Item, rows, cols int, draw func(int) int) [][]*art.Item {
	n := len(pool)
	used := make(map[int]bool, n)
	// Explicit counts can be far larger than the pool; size by what is placed.
	array := make([][]*art.Item, 0, min(rows, n))

	placed := 0
	for r := 0; r < rows && placed < n; r++ {
		row := make([]*art.Item, 0, min(cols, n-placed))
		for c := 0; c < cols && placed < n; c++ {
			idx := draw(n)
			for used[idx] {
				idx = draw(n)
			}
			used[idx] = true
			row = append(row, pool[idx])
			placed++
		}
		array = append(array, row)
	}
	return array
}

func intn(r *rand.Rand) func(int) int {
	if r == nil {
		return rand.IntN
	}
	return r.IntN
}

// Cells returns every occupied cell in row-major order.
func (l *Layout) Cells() []Cell {
	cells := make([]Cell, 0, l.Len())
	for r, row := range l.Array {
		for c, it := range row {
			cells = append(cells, Cell{Row: r, Col: c, Item: it})
		}
	}
	return cells
}

// Len returns the number of occupied cells.
func (l *Layout) Len() int {
	n := 0
	for _, row := range l.Array {
		n += len(row)
	}
	return n
}

// Items returns every item in row-major order.
func (l *Layout) Items() []*art.Item {
	out := make([]*art.Item, 0, l.Len())
	for _, row := range l.Array {
		out = append(out, row...)
	}
	return out
}

// Services returns the collaborators the layout was built with.
func (l *Layout) Services() *resource.Services {
	return l.svc
}

// Image returns the assembled composite, or nil before assembly.
func (l *Layout) Image() *art.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.image
}

// AttachImage records the assembled composite. A layout has at most one.
func (l *Layout) AttachImage(it *art.Item) error {
	if it == nil {
		return errors.Input("composite image is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.image != nil {
		return errors.Conflict("layout %s already has an image", l.ID)
	}
	l.image = it
	return nil
}

func svcLogger(svc *resource.Services) *log.Logger {
	if svc == nil {
		return nil
	}
	return svc.Logger
}
