package source

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fftools/fastflash/pkg/errors"
)

// DirSource reads images from a build-output directory, typically the
// tree named by $ANDROID_PRODUCT_OUT.
type DirSource struct {
	dir string
}

// NewDirSource creates a directory-backed source. The directory must
// be set; resolving images against an empty path is a usage error.
func NewDirSource(dir string) (*DirSource, error) {
	if dir == "" {
		return nil, fmt.Errorf("product output directory is not set")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "product output directory")
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("product output path %s is not a directory", dir)
	}
	slog.Info("image_source_dir", "dir", dir)
	return &DirSource{dir: dir}, nil
}

// ReadFile implements ImageSource.
func (s *DirSource) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "read image")
	}
	return data, nil
}

// OpenFile implements ImageSource.
func (s *DirSource) OpenFile(name string) (io.ReadSeekCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "open image")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat image")
	}
	if !info.Mode().IsRegular() {
		f.Close()
		if info.IsDir() {
			return nil, fs.ErrInvalid
		}
		return nil, fmt.Errorf("%s is not a regular file", name)
	}
	return f, nil
}
