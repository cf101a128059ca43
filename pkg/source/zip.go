package source

import (
	"archive/zip"
	"io"
	"log/slog"
	"os"

	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/security"
)

// ZipSource reads images from a factory package zip.
type ZipSource struct {
	rc        *zip.ReadCloser
	validator *security.Validator
}

// OpenZipSource opens a factory package. The validator, if non-nil, is
// applied to every entry before extraction.
func OpenZipSource(path string, validator *security.Validator) (*ZipSource, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(err, "open package")
	}
	slog.Info("image_source_zip", "path", path, "entries", len(rc.File))
	return &ZipSource{rc: rc, validator: validator}, nil
}

// Close releases the underlying archive.
func (s *ZipSource) Close() error {
	return s.rc.Close()
}

func (s *ZipSource) entry(name string) (*zip.File, error) {
	for _, f := range s.rc.File {
		if f.Name == name {
			if s.validator != nil {
				if err := s.validator.ValidateEntry(f.Name, int64(f.CompressedSize64), int64(f.UncompressedSize64)); err != nil {
					return nil, err
				}
			}
			return f, nil
		}
	}
	return nil, ErrNotFound
}

// ReadFile implements ImageSource.
func (s *ZipSource) ReadFile(name string) ([]byte, error) {
	f, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	r, err := f.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open package entry")
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read package entry")
	}
	return data, nil
}

// OpenFile implements ImageSource. Zip entries are not seekable, so
// the entry is extracted to an anonymous temporary file. The file is
// unlinked as soon as it is created; the OS reclaims it when the
// handle is closed, whatever the exit path.
func (s *ZipSource) OpenFile(name string) (io.ReadSeekCloser, error) {
	f, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	r, err := f.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open package entry")
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "fastflash-extract-*")
	if err != nil {
		return nil, errors.Wrap(err, "create extraction file")
	}
	os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "extract package entry")
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "rewind extracted entry")
	}
	return tmp, nil
}
