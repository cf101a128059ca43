// Package transform turns image bytes into transfer-ready buffers:
// sparse re-chunking against download limits, verified-boot footer
// relocation, vbmeta flag patching, and vendor ramdisk repacking.
package transform

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/sparse"
)

// ResparseLimit caps re-chunk size at 1 GiB regardless of what the
// device claims, to bound host-side allocations.
const ResparseLimit = 1 * 1024 * 1024 * 1024

// Kind is the transfer representation of a buffer.
type Kind int

const (
	// KindRaw is a single contiguous byte range.
	KindRaw Kind = iota
	// KindSparse is an ordered sequence of sparse files, each sent as
	// its own flash sub-operation.
	KindSparse
)

// Buffer is one transfer unit.
type Buffer struct {
	Kind Kind
	// Data holds the bytes of a raw buffer.
	Data []byte
	// Chunks holds the encoded sparse files of a sparse buffer, in
	// device write order.
	Chunks [][]byte
	// Size is the transfer size of a raw buffer.
	Size int64
	// ImageSize is the logical (expanded) image length.
	ImageSize int64
}

// Limits carries the sparse re-chunk configuration for one run. The
// device-reported limit is cached after the first query and must be
// reset after a reboot into userspace fastboot, where the download
// ceiling may differ.
type Limits struct {
	// SparseLimit is the explicit -S override; zero asks the device.
	SparseLimit int64
	// CaptureMode forbids falling back to a device query, since no
	// device is attached while capturing a script.
	CaptureMode bool

	target int64 // cached max-download-size; -1 = unknown
}

// NewLimits creates re-chunk limits with an unqueried device cache.
func NewLimits(sparseLimit int64, captureMode bool) *Limits {
	return &Limits{SparseLimit: sparseLimit, CaptureMode: captureMode, target: -1}
}

// Reset drops the cached device limit.
func (l *Limits) Reset() {
	l.target = -1
}

// ChunkCeiling decides the re-chunk ceiling for an image of the given
// size. Zero means the image is sent as-is.
func (l *Limits) ChunkCeiling(ctx context.Context, d fastboot.VarGetter, size int64) (int64, error) {
	limit := l.SparseLimit
	if limit == 0 {
		if l.CaptureMode {
			return 0, fmt.Errorf("sparse limit is not set")
		}
		if l.target == -1 {
			l.target = int64(fastboot.GetUintVar(ctx, d, fastboot.VarMaxDownloadSize))
		}
		if l.target <= 0 {
			return 0, nil
		}
		limit = l.target
	}

	if size > limit {
		return min(limit, ResparseLimit), nil
	}
	return 0, nil
}

// Load reads a whole image and prepares its transfer representation.
// Sparse images larger than the chunk ceiling are re-chunked; raw
// images are never sparsed.
func Load(ctx context.Context, d fastboot.VarGetter, l *Limits, r io.Reader) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	return LoadBytes(ctx, d, l, data)
}

// LoadBytes is Load for images already in memory.
func LoadBytes(ctx context.Context, d fastboot.VarGetter, l *Limits, data []byte) (*Buffer, error) {
	size := int64(len(data))

	if !sparse.IsSparse(data) {
		return &Buffer{Kind: KindRaw, Data: data, Size: size, ImageSize: size}, nil
	}

	f, err := sparse.Parse(data)
	if err != nil {
		return nil, err
	}
	buf := &Buffer{Kind: KindSparse, ImageSize: f.DataSize()}

	limit, err := l.ChunkCeiling(ctx, d, size)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		chunks, err := sparse.Resparse(data, limit)
		if err != nil {
			return nil, err
		}
		slog.Info("image_resparsed", "chunks", len(chunks), "limit", limit)
		buf.Chunks = chunks
	} else {
		buf.Chunks = [][]byte{data}
	}
	return buf, nil
}
