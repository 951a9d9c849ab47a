// Package imaging is the default pixel codec behind artgrid.
//
// It turns encoded image buffers into other encoded buffers and never keeps
// state between calls: resizing to fixed-format JPEG thumbnails, probing
// header dimensions, painting blocks onto a composite canvas, and writing
// zoomable outputs (a tiled pyramidal TIFF, an IIIF Image API level0 tile
// tree, or a Deep Zoom tile tree).
//
// # Coordinate System
//
// Canvas offsets are 0-based pixels with (0,0) at the top-left corner:
//   - Left: horizontal offset (0 = leftmost pixel)
//   - Top: vertical offset (0 = topmost pixel)
//
// # Thread Safety
//
// Codec holds only its JPEG quality and is safe for concurrent use. The
// compositor resizes many cells in parallel through one Codec.
//
// # Error Handling
//
// Functions return plain wrapped errors ("failed to ...: %w") for:
//   - Empty or undecodable buffers
//   - Non-positive widths, tile sizes or canvas sizes
//   - File I/O errors while writing tile trees
//
// Callers in the resource and compositor packages classify these into the
// artgrid error codes.
//
// # Formats
//
// Decoding accepts PNG, JPEG, GIF, BMP, TIFF and WebP. Thumbnails and tiles
// are written as JPEG, composite canvases as PNG, pyramids as TIFF with
// Deflate-compressed RGBA tiles.
package imaging
