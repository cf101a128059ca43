// Package super reads the logical-partition metadata blob carried in
// super_empty.img, enough to answer which partitions are dynamic.
package super

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/fftools/fastflash/pkg/sparse"
)

const (
	geometryMagic uint32 = 0x616c4467
	headerMagic   uint32 = 0x414c5030

	geometrySize      = 4096
	partitionNameSize = 36
)

// Metadata is the subset of the super partition table this tool needs.
type Metadata struct {
	LogicalBlockSize uint32
	MetadataMaxSize  uint32
	SlotCount        uint32
	// Partitions holds the logical partition names exactly as stored,
	// including any slot suffix.
	Partitions []string
}

// ReadMetadata parses a super_empty.img blob. The blob may be plain or
// wrapped in the sparse image format.
func ReadMetadata(blob []byte) (*Metadata, error) {
	if sparse.IsSparse(blob) {
		f, err := sparse.Parse(blob)
		if err != nil {
			return nil, err
		}
		blob = expand(f)
	}

	// Image files carry the geometry either at the start of the blob
	// or after the 4 KiB reserved area, depending on the writer.
	geomOff := -1
	for _, off := range []int{0, 4096} {
		if len(blob) >= off+4 && binary.LittleEndian.Uint32(blob[off:]) == geometryMagic {
			geomOff = off
			break
		}
	}
	if geomOff < 0 {
		return nil, fmt.Errorf("super: geometry magic not found")
	}
	geom := blob[geomOff:]
	if len(geom) < 52 {
		return nil, fmt.Errorf("super: truncated geometry")
	}
	m := &Metadata{
		MetadataMaxSize:  binary.LittleEndian.Uint32(geom[40:]),
		SlotCount:        binary.LittleEndian.Uint32(geom[44:]),
		LogicalBlockSize: binary.LittleEndian.Uint32(geom[48:]),
	}

	hdrOff := geomOff + geometrySize
	if len(blob) < hdrOff+128 {
		return nil, fmt.Errorf("super: truncated metadata header")
	}
	hdr := blob[hdrOff:]
	if binary.LittleEndian.Uint32(hdr) != headerMagic {
		return nil, fmt.Errorf("super: metadata header magic not found")
	}
	headerSize := binary.LittleEndian.Uint32(hdr[8:])
	partsOff := binary.LittleEndian.Uint32(hdr[80:])
	partsNum := binary.LittleEndian.Uint32(hdr[84:])
	entrySize := binary.LittleEndian.Uint32(hdr[88:])
	if entrySize < partitionNameSize {
		return nil, fmt.Errorf("super: partition entry size %d too small", entrySize)
	}

	tables := int64(hdrOff) + int64(headerSize) + int64(partsOff)
	for i := uint32(0); i < partsNum; i++ {
		off := tables + int64(i)*int64(entrySize)
		if off+partitionNameSize > int64(len(blob)) {
			return nil, fmt.Errorf("super: truncated partition table")
		}
		name := blob[off : off+partitionNameSize]
		if idx := strings.IndexByte(string(name), 0); idx >= 0 {
			name = name[:idx]
		}
		m.Partitions = append(m.Partitions, string(name))
	}
	return m, nil
}

// HasPartition reports whether the named partition (with or without a
// slot suffix) is described by the metadata, meaning it lives inside
// the super partition and must be flashed in userspace fastboot.
func (m *Metadata) HasPartition(name string) bool {
	base := trimSlotSuffix(name)
	for _, p := range m.Partitions {
		if trimSlotSuffix(p) == base {
			return true
		}
	}
	return false
}

func trimSlotSuffix(name string) string {
	for _, suffix := range []string{"_a", "_b"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// expand materializes a parsed sparse file. super_empty.img is tiny,
// so expanding in memory is fine.
func expand(f *sparse.File) []byte {
	out := make([]byte, f.DataSize())
	pos := int64(0)
	for _, c := range f.Chunks {
		span := int64(c.Blocks) * int64(f.BlockSize)
		switch c.Type {
		case sparse.ChunkRaw:
			copy(out[pos:], c.Data)
		case sparse.ChunkFill:
			for i := int64(0); i < span; i += 4 {
				copy(out[pos+i:], c.Data)
			}
		}
		pos += span
	}
	return out
}
