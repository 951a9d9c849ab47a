package art

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/iiif"
	"github.com/ironsheep/artgrid/internal/imaging"
	"github.com/ironsheep/artgrid/internal/resource"
)

// Fields that IIIFOptions.Exclude can omit.
const (
	ExcludeThumbnails = "thumbnails"
	ExcludeMetadata   = "metadata"
)

// IIIFOptions controls the IIIF projection.
type IIIFOptions struct {
	// Exclude lists fields to omit: ExcludeThumbnails, ExcludeMetadata.
	Exclude []string
	// SaveDir receives in-memory images that need a stable id, and the JSON
	// document when SaveJSON is set.
	SaveDir string
	// SaveJSON writes the document to SaveDir as <stem>.json.
	SaveJSON bool
}

func (o IIIFOptions) excludes(field string) bool {
	return slices.Contains(o.Exclude, field)
}

// ToCanvas describes the item as an IIIF Canvas with id.
//
// Width and height come from probing the source. In-memory images are saved
// under opts.SaveDir first and replace the item's in-memory slots.
// Thumbnails are listed largest first.
func (it *Item) ToCanvas(ctx context.Context, id string, opts IIIFOptions) (iiif.Canvas, error) {
	c, err := it.canvas(ctx, id, opts)
	if err != nil {
		return iiif.Canvas{}, err
	}
	if opts.SaveJSON {
		doc := c
		doc.Context = iiif.Context
		if err := it.saveJSON(ctx, opts.SaveDir, doc); err != nil {
			return iiif.Canvas{}, err
		}
	}
	return c, nil
}

// ToManifest describes the item as an IIIF Manifest holding one Canvas
// with id "<id>/canvas/1".
func (it *Item) ToManifest(ctx context.Context, id string, opts IIIFOptions) (iiif.Manifest, error) {
	if id == "" {
		return iiif.Manifest{}, errors.Input("manifest id is required")
	}
	c, err := it.canvas(ctx, id+"/canvas/1", opts)
	if err != nil {
		return iiif.Manifest{}, err
	}
	m := iiif.Manifest{
		Context:   iiif.Context,
		ID:        id,
		Type:      iiif.TypeManifest,
		Label:     c.Label,
		Metadata:  c.Metadata,
		Thumbnail: c.Thumbnail,
		Items:     []iiif.Canvas{c},
	}
	if opts.SaveJSON {
		if err := it.saveJSON(ctx, opts.SaveDir, m); err != nil {
			return iiif.Manifest{}, err
		}
	}
	return m, nil
}

func (it *Item) canvas(ctx context.Context, id string, opts IIIFOptions) (iiif.Canvas, error) {
	if id == "" {
		return iiif.Canvas{}, errors.Input("canvas id is required")
	}

	dims, err := it.Dimensions(ctx)
	if err != nil {
		return iiif.Canvas{}, err
	}
	src := it.Source()
	body, saved, err := src.ToContentResource(ctx, resource.ContentOptions{SaveDir: opts.SaveDir, BaseName: it.FileStem()})
	if err != nil {
		return iiif.Canvas{}, err
	}
	if saved != src {
		it.replaceSource(saved)
	}

	w, h := dims.Oriented()
	c := iiif.NewCanvas(id, w, h, body)
	c.Label = iiif.Text(it.label())

	if !opts.excludes(ExcludeThumbnails) {
		for _, width := range it.ThumbnailWidths() {
			thumb, _ := it.Thumbnail(width)
			cr, saved, err := thumb.ToContentResource(ctx, resource.ContentOptions{
				SaveDir:  opts.SaveDir,
				BaseName: fmt.Sprintf("%s-%d", it.FileStem(), width),
			})
			if err != nil {
				return iiif.Canvas{}, err
			}
			if saved != thumb {
				it.replaceThumbnail(width, saved)
			}
			c.Thumbnail = append(c.Thumbnail, cr)
		}
	}
	if !opts.excludes(ExcludeMetadata) {
		c.Metadata = it.Metadata.ToIIIF()
	}
	return c, nil
}

func (it *Item) label() string {
	if t := it.Metadata.Title(); t != "" {
		return t
	}
	return it.SourceName
}

func (it *Item) saveJSON(ctx context.Context, dir string, doc any) error {
	if dir == "" {
		return errors.Input("a save directory is required to save IIIF JSON")
	}
	if it.svc == nil || it.svc.Saver == nil {
		return errors.New(errors.CodeInternal, "no saver configured")
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "encode iiif document")
	}
	_, err = it.svc.Saver.Save(ctx, filepath.Join(dir, it.FileStem()+".json"), raw)
	return err
}

// FromCanvas rebuilds an item from a Canvas: the painting annotation's body
// becomes the source, each thumbnail is keyed by its width and metadata
// labels become keys.
func FromCanvas(svc *resource.Services, c iiif.Canvas) (*Item, error) {
	body, ok := c.Body()
	if !ok {
		return nil, errors.Input("canvas %s has no painting annotation", c.ID)
	}
	return fromIIIF(svc, c.ID, c.Label, body, c.Width, c.Height, c.Thumbnail, c.Metadata)
}

// FromManifest rebuilds an item from the first Canvas of a Manifest. The
// manifest's own thumbnail and metadata are used when the canvas has none.
func FromManifest(svc *resource.Services, m iiif.Manifest) (*Item, error) {
	if len(m.Items) == 0 {
		return nil, errors.Input("manifest %s has no canvases", m.ID)
	}
	return fromManifestCanvas(svc, m, m.Items[0], m.ID)
}

// ManifestItems rebuilds one item per Canvas of a Manifest, with the same
// fallbacks as FromManifest. A single-canvas manifest keeps the manifest id;
// otherwise each item takes its canvas id.
func ManifestItems(svc *resource.Services, m iiif.Manifest) ([]*Item, error) {
	if len(m.Items) == 0 {
		return nil, errors.Input("manifest %s has no canvases", m.ID)
	}
	items := make([]*Item, 0, len(m.Items))
	for i, c := range m.Items {
		id := c.ID
		if len(m.Items) == 1 {
			id = m.ID
		}
		it, err := fromManifestCanvas(svc, m, c, id)
		if err != nil {
			return nil, errors.Annotate(err, "canvas %d", i)
		}
		items = append(items, it)
	}
	return items, nil
}

func fromManifestCanvas(svc *resource.Services, m iiif.Manifest, c iiif.Canvas, id string) (*Item, error) {
	body, ok := c.Body()
	if !ok {
		return nil, errors.Input("canvas %s has no painting annotation", c.ID)
	}
	thumbs, meta, label := c.Thumbnail, c.Metadata, c.Label
	if len(thumbs) == 0 {
		thumbs = m.Thumbnail
	}
	if len(meta) == 0 {
		meta = m.Metadata
	}
	if len(label) == 0 {
		label = m.Label
	}
	return fromIIIF(svc, id, label, body, c.Width, c.Height, thumbs, meta)
}

func fromIIIF(svc *resource.Services, id string, label iiif.LanguageMap, body iiif.ContentResource,
	width, height int, thumbs []iiif.ContentResource, entries []iiif.MetadataEntry) (*Item, error) {
	meta := MetadataFromIIIF(entries)
	if meta.Title() == "" && label.String() != "" {
		meta.Set(KeyTitle, label.String())
	}

	src, err := resource.FromLocation(svc, body.ID)
	if err != nil {
		return nil, err
	}
	if body.Width > 0 && body.Height > 0 {
		src.SetDimensions(imaging.Dimensions{Width: body.Width, Height: body.Height})
	}
	it, err := New(svc, id, src, meta)
	if err != nil {
		return nil, err
	}
	if width > 0 && height > 0 {
		it.SetDimensions(imaging.Dimensions{Width: width, Height: height})
	}

	for _, t := range thumbs {
		if t.Width <= 0 {
			return nil, errors.Input("thumbnail %s has no width", t.ID)
		}
		r, err := resource.FromLocation(svc, t.ID)
		if err != nil {
			return nil, err
		}
		if t.Height > 0 {
			r.SetDimensions(imaging.Dimensions{Width: t.Width, Height: t.Height})
		}
		if err := it.AddThumbnail(t.Width, r); err != nil {
			return nil, err
		}
	}
	return it, nil
}
