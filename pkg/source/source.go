// Package source abstracts where firmware images come from: a factory
// package zip, or a build-output directory.
package source

import (
	"errors"
	"io"
)

// ErrNotFound is returned when the named image does not exist in the
// source. Absence is a normal outcome; callers decide whether the
// image was optional.
var ErrNotFound = errors.New("image not found in source")

// ImageSource reads named firmware images.
type ImageSource interface {
	// ReadFile reads the whole named entry into memory.
	ReadFile(name string) ([]byte, error)

	// OpenFile opens the named entry as a seekable byte stream.
	// The caller owns the returned handle.
	OpenFile(name string) (io.ReadSeekCloser, error)
}
