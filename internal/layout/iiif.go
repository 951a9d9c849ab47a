package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/iiif"
	"github.com/ironsheep/artgrid/internal/resource"
)

// IIIFOptions controls the layout projection. The embedded item options
// apply to every cell; SaveJSON saves the layout document (not each cell) as
// <SaveDir>/<Name>.json.
type IIIFOptions struct {
	art.IIIFOptions
	// BaseID prefixes every generated id; the layout id when empty.
	BaseID string
}

func (o IIIFOptions) base(l *Layout) string {
	if o.BaseID != "" {
		return strings.TrimRight(o.BaseID, "/")
	}
	return l.ID
}

func (o IIIFOptions) cellOptions() art.IIIFOptions {
	cell := o.IIIFOptions
	cell.SaveJSON = false
	return cell
}

// ToIIIF projects the layout as a Manifest or a Collection, selected by kind
// ("Manifest" or "Collection", any case).
func (l *Layout) ToIIIF(ctx context.Context, kind string, opts IIIFOptions) (any, error) {
	switch strings.ToLower(kind) {
	case strings.ToLower(iiif.TypeManifest):
		return l.ToManifest(ctx, opts)
	case strings.ToLower(iiif.TypeCollection):
		return l.ToCollection(ctx, opts)
	default:
		return nil, errors.Input("unknown IIIF kind %q (want Manifest or Collection)", kind)
	}
}

// ToManifest makes every cell a Canvas, in row-major order, inside one
// Manifest.
func (l *Layout) ToManifest(ctx context.Context, opts IIIFOptions) (iiif.Manifest, error) {
	base := opts.base(l)
	m := iiif.Manifest{
		Context: iiif.Context,
		ID:      base + "/manifest",
		Type:    iiif.TypeManifest,
		Label:   iiif.Text(l.Name),
		Items:   make([]iiif.Canvas, 0, l.Len()),
	}
	for i, cell := range l.Cells() {
		c, err := cell.Item.ToCanvas(ctx, fmt.Sprintf("%s/canvas/%d", base, i+1), opts.cellOptions())
		if err != nil {
			return iiif.Manifest{}, errors.Annotate(err, "cell (%d,%d)", cell.Row, cell.Col)
		}
		m.Items = append(m.Items, c)
	}
	if opts.SaveJSON {
		if err := l.saveJSON(ctx, opts.SaveDir, m); err != nil {
			return iiif.Manifest{}, err
		}
	}
	return m, nil
}

// ToCollection makes every cell its own Manifest, in row-major order, inside
// one Collection.
func (l *Layout) ToCollection(ctx context.Context, opts IIIFOptions) (iiif.Collection, error) {
	base := opts.base(l)
	col := iiif.Collection{
		Context: iiif.Context,
		ID:      base + "/collection",
		Type:    iiif.TypeCollection,
		Label:   iiif.Text(l.Name),
		Items:   make([]iiif.Manifest, 0, l.Len()),
	}
	for i, cell := range l.Cells() {
		m, err := cell.Item.ToManifest(ctx, fmt.Sprintf("%s/manifest/%d", base, i+1), opts.cellOptions())
		if err != nil {
			return iiif.Collection{}, errors.Annotate(err, "cell (%d,%d)", cell.Row, cell.Col)
		}
		m.Context = ""
		col.Items = append(col.Items, m)
	}
	if opts.SaveJSON {
		if err := l.saveJSON(ctx, opts.SaveDir, col); err != nil {
			return iiif.Collection{}, err
		}
	}
	return col, nil
}

func (l *Layout) saveJSON(ctx context.Context, dir string, doc any) error {
	if dir == "" {
		return errors.Input("a save directory is required to save IIIF JSON")
	}
	if l.svc == nil || l.svc.Saver == nil {
		return errors.New(errors.CodeInternal, "no saver configured")
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "encode iiif document")
	}
	_, err = l.svc.Saver.Save(ctx, filepath.Join(dir, l.Name+".json"), raw)
	return err
}

// FromIIIF rebuilds a layout from a Manifest (one item per Canvas) or a
// Collection (one item per Manifest) by random placement.
//
// When opts.ThumbnailWidth is 0 it is inferred from the first item whose
// dimensions are already known, or else by probing the first item. opts.Pool
// and opts.Array are ignored.
func FromIIIF(ctx context.Context, svc *resource.Services, data []byte, opts Options) (*Layout, error) {
	kind, err := iiif.DetectType(data)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "read IIIF document")
	}

	var pool []*art.Item
	var label iiif.LanguageMap
	switch kind {
	case iiif.TypeManifest:
		var m iiif.Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrap(errors.CodeInput, err, "malformed manifest")
		}
		label = m.Label
		for i, c := range m.Items {
			it, err := art.FromCanvas(svc, c)
			if err != nil {
				return nil, errors.Wrap(errors.CodeInput, err, "canvas %d", i)
			}
			pool = append(pool, it)
		}
	case iiif.TypeCollection:
		var col iiif.Collection
		if err := json.Unmarshal(data, &col); err != nil {
			return nil, errors.Wrap(errors.CodeInput, err, "malformed collection")
		}
		label = col.Label
		for i, m := range col.Items {
			items, err := art.ManifestItems(svc, m)
			if err != nil {
				return nil, errors.Wrap(errors.CodeInput, err, "manifest %d", i)
			}
			pool = append(pool, items...)
		}
	default:
		return nil, errors.Input("expected a Manifest or Collection, got %q", kind)
	}
	if len(pool) == 0 {
		return nil, errors.Input("IIIF document has no items")
	}

	if opts.ThumbnailWidth == 0 {
		w, err := inferWidth(ctx, pool)
		if err != nil {
			return nil, err
		}
		opts.ThumbnailWidth = w
	}
	if opts.Name == "" {
		opts.Name = label.String()
	}
	opts.Array = nil
	opts.Pool = pool
	return New(ctx, svc, opts)
}

func inferWidth(ctx context.Context, pool []*art.Item) (int, error) {
	for _, it := range pool {
		if d, ok := it.CachedDimensions(); ok && d.Width > 0 {
			return d.Width, nil
		}
	}
	d, err := pool[0].Dimensions(ctx)
	if err != nil {
		return 0, err
	}
	if d.Width <= 0 {
		return 0, errors.Input("cannot infer a thumbnail width from %s", pool[0].SourceName)
	}
	return d.Width, nil
}
