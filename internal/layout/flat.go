package layout

import (
	"context"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/resource"
)

// Flat is the serialized shape of a layout.
type Flat struct {
	ID             string       `json:"id" bson:"_id"`
	Name           string       `json:"name,omitempty" bson:"name,omitempty"`
	NumRows        int          `json:"numRows" bson:"numRows"`
	NumCols        int          `json:"numCols" bson:"numCols"`
	ThumbnailWidth int          `json:"thumbnailWidth" bson:"thumbnailWidth"`
	Array          [][]art.Flat `json:"array" bson:"array"`
	Image          *art.Flat    `json:"image,omitempty" bson:"image,omitempty"`
}

// Store looks up and records saved layouts.
type Store interface {
	// FindLayout returns the layout with id, or (nil, nil) when there is none.
	FindLayout(ctx context.Context, id string) (*Flat, error)
	SaveLayout(ctx context.Context, f *Flat) error
}

// ToFlat maps every cell through art.Item.ToFlat. It fails with
// CodeSerialization while any cell still holds in-memory images.
func (l *Layout) ToFlat() (Flat, error) {
	f := Flat{
		ID:             l.ID,
		Name:           l.Name,
		NumRows:        l.NumRows,
		NumCols:        l.NumCols,
		ThumbnailWidth: l.ThumbnailWidth,
		Array:          make([][]art.Flat, len(l.Array)),
	}
	for r, row := range l.Array {
		f.Array[r] = make([]art.Flat, len(row))
		for c, it := range row {
			af, err := it.ToFlat()
			if err != nil {
				return Flat{}, errors.Wrap(errors.CodeSerialization, err, "cell (%d,%d)", r, c)
			}
			f.Array[r][c] = af
		}
	}
	if img := l.Image(); img != nil {
		af, err := img.ToFlat()
		if err != nil {
			return Flat{}, errors.Wrap(errors.CodeSerialization, err, "layout image")
		}
		f.Image = &af
	}
	return f, nil
}

// FromFlat rebuilds a layout. Every row but the last must be full; the last
// may be short, as random placement leaves it.
func FromFlat(svc *resource.Services, f Flat) (*Layout, error) {
	if f.ID == "" {
		return nil, errors.Input("layout id is required")
	}
	if len(f.Array) == 0 {
		return nil, errors.Input("layout %s has no cells", f.ID)
	}
	if f.NumRows != len(f.Array) {
		return nil, errors.Input("layout %s: numRows is %d but the array has %d rows", f.ID, f.NumRows, len(f.Array))
	}
	if f.ThumbnailWidth <= 0 {
		return nil, errors.Input("layout %s: thumbnail width must be positive", f.ID)
	}

	l := &Layout{
		ID:             f.ID,
		Name:           f.Name,
		NumRows:        f.NumRows,
		NumCols:        f.NumCols,
		ThumbnailWidth: f.ThumbnailWidth,
		Array:          make([][]*art.Item, len(f.Array)),
		svc:            svc,
	}
	last := len(f.Array) - 1
	for r, row := range f.Array {
		full := len(row) == f.NumCols
		if !full && (r != last || len(row) == 0 || len(row) > f.NumCols) {
			return nil, errors.Input("layout %s: row %d has %d cells, want %d", f.ID, r, len(row), f.NumCols)
		}
		l.Array[r] = make([]*art.Item, len(row))
		for c, af := range row {
			it, err := art.FromFlat(svc, af)
			if err != nil {
				return nil, errors.Wrap(errors.CodeInput, err, "cell (%d,%d)", r, c)
			}
			l.Array[r][c] = it
		}
	}
	if f.Image != nil {
		img, err := art.FromFlat(svc, *f.Image)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInput, err, "layout image")
		}
		l.image = img
	}
	return l, nil
}

// Lookup loads the layout saved under id.
func Lookup(ctx context.Context, svc *resource.Services, store Store, id string) (*Layout, error) {
	f, err := store.FindLayout(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New(errors.CodeResourceUnavailable, "no layout with id %s", id)
	}
	return FromFlat(svc, *f)
}

// Save flattens the layout and records it in store.
func (l *Layout) Save(ctx context.Context, store Store) error {
	f, err := l.ToFlat()
	if err != nil {
		return err
	}
	return store.SaveLayout(ctx, &f)
}
