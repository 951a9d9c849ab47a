// Package resource provides Resource, a lazily loaded handle to one image.
//
// A Resource is identified by a location (filesystem path or URL) or, when it
// only exists in memory, by a content-derived placeholder id. Its bytes are
// fetched at most once and then kept for the lifetime of the handle; there is
// no eviction. Derivations (thumbnails, tiled outputs) produce new Resources
// and never modify the receiver's id.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Load holds the resource's lock
// while fetching, so concurrent callers share a single fetch.
package resource

import (
	"context"
	"encoding/hex"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/zeebo/blake3"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/iiif"
	"github.com/ironsheep/artgrid/internal/imaging"
	"github.com/ironsheep/artgrid/internal/logging"
)

// MemoryScheme prefixes the placeholder id of buffer-only resources.
const MemoryScheme = "memory:"

// Resource is a lazily loaded, memoized image.
type Resource struct {
	id  string
	svc *Services

	mu      sync.Mutex
	buf     []byte
	dims    *imaging.Dimensions
	format  string
	service string // IIIF image service id, for tile directories
}

// FromLocation creates a resource backed by a path or URL. Nothing is read
// until Load.
func FromLocation(svc *Services, location string) (*Resource, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.Input("resource location is empty")
	}
	return &Resource{id: location, svc: svc}, nil
}

// FromBuffer creates an in-memory resource. Its id is a placeholder derived
// from the buffer contents and cannot be resolved by a Fetcher.
func FromBuffer(svc *Services, data []byte) (*Resource, error) {
	if len(data) == 0 {
		return nil, errors.Input("resource buffer is empty")
	}
	sum := blake3.Sum256(data)
	return &Resource{
		id:  MemoryScheme + hex.EncodeToString(sum[:16]),
		svc: svc,
		buf: data,
	}, nil
}

// ID returns the location or placeholder id. It never changes.
func (r *Resource) ID() string {
	return r.id
}

// InMemory reports whether the resource has no resolvable location.
func (r *Resource) InMemory() bool {
	return strings.HasPrefix(r.id, MemoryScheme)
}

// Services returns the collaborators the resource was created with.
func (r *Resource) Services() *Services {
	return r.svc
}

// Loaded reports whether the bytes are already in memory.
func (r *Resource) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf != nil
}

// SetDimensions records dimensions known from elsewhere (for example an IIIF
// document) so Dimensions does not need to load and probe the image.
func (r *Resource) SetDimensions(d imaging.Dimensions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dims = &d
}

// Load returns the image bytes, fetching them on first use.
func (r *Resource) Load(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Resource) loadLocked(ctx context.Context) ([]byte, error) {
	if r.buf != nil {
		return r.buf, nil
	}
	if r.InMemory() {
		return nil, errors.Input("in-memory resource %s has no buffer", r.id)
	}
	if r.svc == nil || r.svc.Fetcher == nil {
		return nil, errors.New(errors.CodeInternal, "no fetcher configured for %s", r.id)
	}

	data, err := r.svc.Fetcher.Fetch(ctx, r.id)
	if err != nil {
		if errors.GetCode(err) == "" {
			err = errors.Unavailable(err, "load %s", r.id)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.Unavailable(nil, "load %s: empty response", r.id)
	}
	r.logger(ctx).Debug("loaded resource", "id", r.id, "bytes", len(data))
	r.buf = data
	return data, nil
}

// Dimensions probes the image header on first use and memoizes the result.
func (r *Resource) Dimensions(ctx context.Context) (imaging.Dimensions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dims != nil {
		return *r.dims, nil
	}
	data, err := r.loadLocked(ctx)
	if err != nil {
		return imaging.Dimensions{}, err
	}
	codec, err := r.codec()
	if err != nil {
		return imaging.Dimensions{}, err
	}
	d, err := codec.Probe(data)
	if err != nil {
		return imaging.Dimensions{}, errors.Wrap(errors.CodeInternal, err, "probe %s", r.id)
	}
	r.dims = &d
	return d, nil
}

// Format returns the MIME type, from the id's extension when it has a known
// one and from the buffer contents otherwise.
func (r *Resource) Format(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.format != "" {
		return r.format, nil
	}
	if !r.InMemory() {
		if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(r.id))); strings.HasPrefix(t, "image/") {
			r.format = t
			return t, nil
		}
	}
	data, err := r.loadLocked(ctx)
	if err != nil {
		return "", err
	}
	info, err := imaging.Inspect(data)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "inspect %s", r.id)
	}
	r.format = info.MimeType
	return r.format, nil
}

// ThumbnailOptions controls where GenerateThumbnail puts its output.
type ThumbnailOptions struct {
	// SaveDir, when set, saves the thumbnail as <SaveDir>/<BaseName>-<width>.jpg.
	SaveDir string
	// BaseName is the file name stem; required with SaveDir.
	BaseName string
}

// ThumbnailPath returns the deterministic file name of a saved thumbnail.
func ThumbnailPath(dir, baseName string, width int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%d.jpg", baseName, width))
}

// GenerateThumbnail resizes the image to width pixels as JPEG and returns
// the result as a new resource. Without SaveDir the new resource is
// in-memory.
func (r *Resource) GenerateThumbnail(ctx context.Context, width int, opts ThumbnailOptions) (*Resource, error) {
	if width <= 0 {
		return nil, errors.Input("thumbnail width must be positive, got %d", width)
	}
	if opts.SaveDir != "" && opts.BaseName == "" {
		return nil, errors.Input("a base name is required to save thumbnails")
	}

	data, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	codec, err := r.codec()
	if err != nil {
		return nil, err
	}
	out, err := codec.Resize(data, width)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "resize %s to %d", r.id, width)
	}

	if opts.SaveDir == "" {
		thumb, err := FromBuffer(r.svc, out)
		if err != nil {
			return nil, err
		}
		thumb.format = "image/jpeg"
		return thumb, nil
	}

	loc, err := r.save(ctx, ThumbnailPath(opts.SaveDir, opts.BaseName, width), out)
	if err != nil {
		return nil, err
	}
	r.logger(ctx).Debug("saved thumbnail", "source", r.id, "width", width, "path", loc)
	return &Resource{id: loc, svc: r.svc, buf: out, format: "image/jpeg"}, nil
}

// OutputKind selects the zoomable output GenerateImage writes.
type OutputKind string

// Output kinds.
const (
	KindTIFF OutputKind = "tiff"
	KindIIIF OutputKind = "iiif"
	KindDZI  OutputKind = "dzi"
)

// ParseKind validates a kind name.
func ParseKind(s string) (OutputKind, error) {
	switch k := OutputKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindTIFF, KindIIIF, KindDZI:
		return k, nil
	default:
		return "", errors.Input("unknown output kind %q (want tiff, iiif or dzi)", s)
	}
}

// ImageOptions controls GenerateImage.
type ImageOptions struct {
	Kind OutputKind
	// Dir receives the output; required.
	Dir string
	// Name is the output base name: <Name>.tif, <Name>/ or <Name>.dzi.
	Name string
	// BaseURL is where Dir is published. It becomes the IIIF image service id
	// prefix; the absolute output path is used when empty.
	BaseURL string
}

// GenerateImage re-encodes the image as a zoomable output on disk and returns
// a resource pointing at it. TIFF tiles are sized by TileSize.
func (r *Resource) GenerateImage(ctx context.Context, opts ImageOptions) (*Resource, error) {
	if opts.Dir == "" {
		return nil, errors.Input("an output directory is required to generate %s output", opts.Kind)
	}
	if opts.Name == "" {
		return nil, errors.Input("an output name is required")
	}

	dims, err := r.Dimensions(ctx)
	if err != nil {
		return nil, err
	}
	data, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	codec, err := r.codec()
	if err != nil {
		return nil, err
	}

	w, h := dims.Oriented()
	outDims := imaging.Dimensions{Width: w, Height: h}
	l := r.logger(ctx)

	switch opts.Kind {
	case KindTIFF:
		tw, th := imaging.TileSize(w), imaging.TileSize(h)
		out, err := codec.EncodeTiledPyramid(data, tw, th)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "encode tiled pyramid for %s", r.id)
		}
		loc, err := r.save(ctx, filepath.Join(opts.Dir, opts.Name+".tif"), out)
		if err != nil {
			return nil, err
		}
		l.Info("wrote tiled pyramid", "path", loc, "tile_width", tw, "tile_height", th)
		return &Resource{id: loc, svc: r.svc, buf: out, dims: &outDims, format: "image/tiff"}, nil

	case KindIIIF:
		dir, err := filepath.Abs(filepath.Join(opts.Dir, opts.Name))
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "resolve %s", opts.Dir)
		}
		base := dir
		if opts.BaseURL != "" {
			base = strings.TrimRight(opts.BaseURL, "/") + "/" + opts.Name
		}
		loc, err := codec.EncodeTileDirectory(ctx, data, imaging.TileLayoutIIIF, dir, base)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "write iiif tiles for %s", r.id)
		}
		l.Info("wrote iiif tiles", "dir", loc, "service", base)
		return &Resource{id: loc, svc: r.svc, dims: &outDims, format: "image/jpeg", service: base}, nil

	case KindDZI:
		base, err := filepath.Abs(filepath.Join(opts.Dir, opts.Name))
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "resolve %s", opts.Dir)
		}
		loc, err := codec.EncodeTileDirectory(ctx, data, imaging.TileLayoutDZI, base, "")
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "write deep zoom tiles for %s", r.id)
		}
		l.Info("wrote deep zoom tiles", "descriptor", loc)
		return &Resource{id: loc, svc: r.svc, dims: &outDims, format: "image/jpeg"}, nil

	default:
		return nil, errors.Input("unknown output kind %q", opts.Kind)
	}
}

// ContentOptions controls ToContentResource.
type ContentOptions struct {
	// SaveDir is where an in-memory resource is saved before it can be
	// described. Without it, describing an in-memory resource fails.
	SaveDir string
	// BaseName is the file name stem used when saving; defaults to the
	// placeholder hash.
	BaseName string
}

// ToContentResource describes the resource as an IIIF Image content resource.
//
// The description needs a stable id. An in-memory resource is first saved
// under opts.SaveDir; the returned *Resource is then the saved copy and
// should replace the receiver wherever it is held. Otherwise the receiver
// itself is returned.
func (r *Resource) ToContentResource(ctx context.Context, opts ContentOptions) (iiif.ContentResource, *Resource, error) {
	target := r
	if r.InMemory() {
		if opts.SaveDir == "" {
			return iiif.ContentResource{}, nil, errors.Input("resource %s is only in memory; a save directory is required", r.id)
		}
		name := opts.BaseName
		if name == "" {
			name = strings.TrimPrefix(r.id, MemoryScheme)
		}
		format, err := r.Format(ctx)
		if err != nil {
			return iiif.ContentResource{}, nil, err
		}
		saved, err := r.Persist(ctx, filepath.Join(opts.SaveDir, name+extension(format)))
		if err != nil {
			return iiif.ContentResource{}, nil, err
		}
		target = saved
	}

	dims, err := target.Dimensions(ctx)
	if err != nil {
		return iiif.ContentResource{}, nil, err
	}
	format, err := target.Format(ctx)
	if err != nil {
		return iiif.ContentResource{}, nil, err
	}

	w, h := dims.Oriented()
	cr := iiif.ContentResource{
		ID:     target.id,
		Type:   iiif.TypeImage,
		Format: format,
		Width:  w,
		Height: h,
	}
	if target.service != "" {
		cr.ID = fmt.Sprintf("%s/full/%d,%d/0/default.jpg", target.service, w, h)
		cr.Service = []iiif.Service{{ID: target.service, Type: iiif.TypeImageService3, Profile: "level0"}}
	}
	return cr, target, nil
}

// Persist saves the loaded bytes to path and returns a resource identified by
// the saved location. The receiver keeps its own id.
func (r *Resource) Persist(ctx context.Context, path string) (*Resource, error) {
	data, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := r.save(ctx, path, data)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	saved := &Resource{id: loc, svc: r.svc, buf: data, format: r.format}
	if r.dims != nil {
		d := *r.dims
		saved.dims = &d
	}
	return saved, nil
}

func (r *Resource) save(ctx context.Context, path string, data []byte) (string, error) {
	if r.svc == nil || r.svc.Saver == nil {
		return "", errors.New(errors.CodeInternal, "no saver configured")
	}
	loc, err := r.svc.Saver.Save(ctx, path, data)
	if err != nil {
		if errors.GetCode(err) == "" {
			err = errors.Wrap(errors.CodeInternal, err, "save %s", path)
		}
		return "", err
	}
	return loc, nil
}

func (r *Resource) codec() (Codec, error) {
	if r.svc == nil || r.svc.Codec == nil {
		return nil, errors.New(errors.CodeInternal, "no codec configured")
	}
	return r.svc.Codec, nil
}

func (r *Resource) logger(ctx context.Context) *log.Logger {
	if r.svc == nil {
		return logging.FromContext(ctx)
	}
	return logging.Pick(ctx, r.svc.Logger)
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/tiff":
		return ".tif"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}
