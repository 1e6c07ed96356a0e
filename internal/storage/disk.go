package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/xid"
)

// DiskURLPrefix is the route disk-stored images are served under.
const DiskURLPrefix = "/uploads"

// Disk stores images as files in one directory.
//
// File names are xids; the uploaded file's own name is never used.
type Disk struct {
	dir string
}

var _ Store = (*Disk)(nil)

// NewDisk creates dir if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating upload dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Dir is the directory files are written to. The server mounts it at
// DiskURLPrefix.
func (d *Disk) Dir() string { return d.dir }

// Name implements Store.
func (d *Disk) Name() string { return "local" }

// Save writes data to <dir>/<xid>.jpg. contentType is ignored; everything
// the pipeline produces is JPEG.
func (d *Disk) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := xid.New().String() + ".jpg"
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}
	return path.Join(DiskURLPrefix, name), nil
}

// Ping checks that the directory still exists.
func (d *Disk) Ping(ctx context.Context) error {
	info, err := os.Stat(d.dir)
	if err != nil {
		return fmt.Errorf("storage: upload dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage: upload dir %s is not a directory", d.dir)
	}
	return nil
}
