// Package art models a single art item: one source image, its thumbnails by
// width and its descriptive metadata.
//
// Items are built from one of three input shapes (the current flat object,
// the legacy flat object, or an IIIF Canvas/Manifest) and written back as the
// current flat object or as IIIF. See DecodeInput for the input variant.
package art

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/imaging"
	"github.com/ironsheep/artgrid/internal/resource"
)

// Item is one art image with its thumbnails and metadata.
//
// The thumbnail map and cached dimensions are guarded by the item's lock, so
// one Item may be used from several goroutines.
type Item struct {
	// ID is optional, assigned by the caller or a backing store.
	ID string
	// SourceName is the display name: the URL or file name without
	// extension, or the title for buffer sources.
	SourceName string
	Metadata   Metadata

	svc *resource.Services

	mu         sync.Mutex
	source     *resource.Resource
	thumbnails map[int]*resource.Resource
	dims       *imaging.Dimensions
}

// New creates an item around source. A buffer-only source has no name to
// derive, so meta must carry a title.
func New(svc *resource.Services, id string, source *resource.Resource, meta Metadata) (*Item, error) {
	if source == nil {
		return nil, errors.Input("art item requires a source")
	}
	name, err := sourceName(source, meta)
	if err != nil {
		return nil, err
	}
	return &Item{
		ID:         id,
		SourceName: name,
		Metadata:   meta,
		svc:        svc,
		source:     source,
		thumbnails: make(map[int]*resource.Resource),
	}, nil
}

// FromLocation creates an item whose source is a path or URL.
func FromLocation(svc *resource.Services, id, location string, meta Metadata) (*Item, error) {
	src, err := resource.FromLocation(svc, location)
	if err != nil {
		return nil, err
	}
	return New(svc, id, src, meta)
}

// FromBuffer creates an item from in-memory image bytes. meta must carry a
// title.
func FromBuffer(svc *resource.Services, id string, data []byte, meta Metadata) (*Item, error) {
	if meta.Title() == "" {
		return nil, errors.Input("an art item built from a buffer requires metadata.title")
	}
	src, err := resource.FromBuffer(svc, data)
	if err != nil {
		return nil, err
	}
	return New(svc, id, src, meta)
}

func sourceName(src *resource.Resource, meta Metadata) (string, error) {
	if src.InMemory() {
		if t := meta.Title(); t != "" {
			return t, nil
		}
		return "", errors.Input("an art item built from a buffer requires metadata.title")
	}

	loc := src.ID()
	var p string
	if u, err := url.Parse(loc); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = path.Base(u.Path)
	} else {
		p = filepath.Base(loc)
	}
	name := strings.TrimSuffix(p, path.Ext(p))
	if name == "" || name == "." || name == "/" {
		if t := meta.Title(); t != "" {
			return t, nil
		}
		return "", errors.Input("cannot derive a name from %q", loc)
	}
	return name, nil
}

// Source returns the primary image resource.
func (it *Item) Source() *resource.Resource {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.source
}

// FileStem is SourceName made safe for use in a file name.
func (it *Item) FileStem() string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '-'
		}
		return r
	}, it.SourceName)
}

// ThumbnailExists reports whether a thumbnail of width is present.
func (it *Item) ThumbnailExists(width int) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	_, ok := it.thumbnails[width]
	return ok
}

// Thumbnail returns the thumbnail resource of width.
func (it *Item) Thumbnail(width int) (*resource.Resource, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	r, ok := it.thumbnails[width]
	return r, ok
}

// ThumbnailWidths returns the present widths, largest first.
func (it *Item) ThumbnailWidths() []int {
	it.mu.Lock()
	defer it.mu.Unlock()
	widths := make([]int, 0, len(it.thumbnails))
	for w := range it.thumbnails {
		widths = append(widths, w)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(widths)))
	return widths
}

// AddThumbnail registers an existing thumbnail resource.
func (it *Item) AddThumbnail(width int, r *resource.Resource) error {
	if width <= 0 {
		return errors.Input("thumbnail width must be positive, got %d", width)
	}
	if r == nil {
		return errors.Input("thumbnail resource is nil")
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	if _, ok := it.thumbnails[width]; ok {
		return errors.Conflict("thumbnail of width %d already exists for %s", width, it.SourceName)
	}
	it.thumbnails[width] = r
	return nil
}

// CreateThumbnail generates and stores a thumbnail of width. It fails with
// CodeStateConflict when that width already exists. opts.BaseName defaults
// to FileStem.
func (it *Item) CreateThumbnail(ctx context.Context, width int, opts resource.ThumbnailOptions) (*resource.Resource, error) {
	if width <= 0 {
		return nil, errors.Input("thumbnail width must be positive, got %d", width)
	}
	if opts.BaseName == "" {
		opts.BaseName = it.FileStem()
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if _, ok := it.thumbnails[width]; ok {
		return nil, errors.Conflict("thumbnail of width %d already exists for %s", width, it.SourceName)
	}
	if it.source == nil {
		return nil, errors.Input("art item %s has no source", it.SourceName)
	}
	thumb, err := it.source.GenerateThumbnail(ctx, width, opts)
	if err != nil {
		return nil, err
	}
	it.thumbnails[width] = thumb
	return thumb, nil
}

// LoadOrCreateThumbnail returns the bytes of the width thumbnail, creating
// an in-memory one first when absent.
func (it *Item) LoadOrCreateThumbnail(ctx context.Context, width int) ([]byte, error) {
	if thumb, ok := it.Thumbnail(width); ok {
		return thumb.Load(ctx)
	}
	thumb, err := it.CreateThumbnail(ctx, width, resource.ThumbnailOptions{})
	if errors.Is(err, errors.CodeStateConflict) {
		// Created concurrently between the check and the create.
		thumb, _ = it.Thumbnail(width)
	} else if err != nil {
		return nil, err
	}
	return thumb.Load(ctx)
}

// Dimensions returns the full-resolution size, probing the source once.
func (it *Item) Dimensions(ctx context.Context) (imaging.Dimensions, error) {
	it.mu.Lock()
	if it.dims != nil {
		d := *it.dims
		it.mu.Unlock()
		return d, nil
	}
	src := it.source
	it.mu.Unlock()

	d, err := src.Dimensions(ctx)
	if err != nil {
		return imaging.Dimensions{}, err
	}
	it.mu.Lock()
	it.dims = &d
	it.mu.Unlock()
	return d, nil
}

// CachedDimensions returns the dimensions if they are already known.
func (it *Item) CachedDimensions() (imaging.Dimensions, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.dims == nil {
		return imaging.Dimensions{}, false
	}
	return *it.dims, true
}

// SetDimensions records the full-resolution size without probing.
func (it *Item) SetDimensions(d imaging.Dimensions) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.dims = &d
}

// Persist saves every in-memory resource of the item under dir so the item
// can be flattened. Thumbnails are saved as <stem>-<width>.jpg and a buffer
// source as <stem> plus its format's extension.
func (it *Item) Persist(ctx context.Context, dir string) error {
	if dir == "" {
		return errors.Input("a directory is required to persist %s", it.SourceName)
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if it.source.InMemory() {
		_, saved, err := it.source.ToContentResource(ctx, resource.ContentOptions{SaveDir: dir, BaseName: it.FileStem()})
		if err != nil {
			return err
		}
		it.source = saved
	}
	for w, thumb := range it.thumbnails {
		if !thumb.InMemory() {
			continue
		}
		saved, err := thumb.Persist(ctx, resource.ThumbnailPath(dir, it.FileStem(), w))
		if err != nil {
			return err
		}
		it.thumbnails[w] = saved
	}
	return nil
}

// replaceSource swaps in a persisted copy of the source.
func (it *Item) replaceSource(r *resource.Resource) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.source = r
}

// replaceThumbnail swaps in a persisted copy of a thumbnail.
func (it *Item) replaceThumbnail(width int, r *resource.Resource) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.thumbnails[width] = r
}
