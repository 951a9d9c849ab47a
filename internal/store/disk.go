package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ironsheep/artgrid/internal/errors"
)

// Disk saves generated output to the local filesystem.
type Disk struct {
	// Perm is the mode for new files; 0644 when zero.
	Perm os.FileMode
}

// NewDisk returns a Disk saver with default permissions.
func NewDisk() *Disk {
	return &Disk{Perm: 0644}
}

// Save writes data to path, creating parent directories, and returns the
// absolute path written.
func (d *Disk) Save(ctx context.Context, path string, data []byte) (string, error) {
	if path == "" {
		return "", errors.Input("save path is empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "resolve %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "create directory for %s", abs)
	}

	perm := d.Perm
	if perm == 0 {
		perm = 0644
	}
	if err := os.WriteFile(abs, data, perm); err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "write %s", abs)
	}
	return abs, nil
}

