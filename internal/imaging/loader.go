package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"net/http"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ImageInfo contains metadata about an encoded image buffer.
//
// This struct provides essential information about an image without requiring
// the caller to decode pixel data.
type ImageInfo struct {
	// Width is the stored image width in pixels.
	Width int `json:"width"`

	// Height is the stored image height in pixels.
	Height int `json:"height"`

	// Format is the decoder name: "png", "jpeg", "gif", "bmp", "tiff" or "webp".
	Format string `json:"format"`

	// MimeType is the IANA media type matching Format.
	MimeType string `json:"mime_type"`

	// Orientation is the EXIF orientation (1-8) for JPEG sources, 0 when absent.
	Orientation int `json:"orientation,omitempty"`

	// SizeBytes is the length of the encoded buffer.
	SizeBytes int64 `json:"size_bytes"`
}

// Inspect reads the header of an encoded image and reports its metadata.
//
// Parameters:
//   - data: The complete encoded image. Supported formats are PNG, JPEG, GIF,
//     BMP, TIFF and WebP.
//
// Returns:
//   - *ImageInfo: Metadata about the image.
//   - error: Non-nil if the buffer is empty or not a recognised image.
//
// # Format Detection
//
// Unlike a file-extension check, the format is determined from the buffer
// contents by the registered decoders, so in-memory buffers without a name
// are classified correctly.
func Inspect(data []byte) (*ImageInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to inspect image: empty buffer")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}

	info := &ImageInfo{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		MimeType:  MimeType(format, data),
		SizeBytes: int64(len(data)),
	}
	if format == "jpeg" {
		info.Orientation = jpegOrientation(data)
	}
	return info, nil
}

// MimeType maps a decoder format name to its media type, sniffing data when
// the name is unknown.
func MimeType(format string, data []byte) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	}
	return http.DetectContentType(data)
}
