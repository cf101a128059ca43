package super

import (
	"encoding/binary"
	"testing"

	"github.com/fftools/fastflash/pkg/sparse"
)

func buildBlob(partitions ...string) []byte {
	const (
		headerSize = 256
		entrySize  = 64
	)
	blob := make([]byte, 4096+headerSize+len(partitions)*entrySize)
	binary.LittleEndian.PutUint32(blob[0:], geometryMagic)
	binary.LittleEndian.PutUint32(blob[40:], 65536) // metadata max size
	binary.LittleEndian.PutUint32(blob[44:], 2)     // metadata slot count
	binary.LittleEndian.PutUint32(blob[48:], 4096)  // logical block size
	hdr := blob[4096:]
	binary.LittleEndian.PutUint32(hdr[0:], headerMagic)
	binary.LittleEndian.PutUint32(hdr[8:], headerSize)
	binary.LittleEndian.PutUint32(hdr[80:], 0)
	binary.LittleEndian.PutUint32(hdr[84:], uint32(len(partitions)))
	binary.LittleEndian.PutUint32(hdr[88:], entrySize)
	for i, name := range partitions {
		copy(blob[4096+headerSize+i*entrySize:], name)
	}
	return blob
}

func TestReadMetadata(t *testing.T) {
	meta, err := ReadMetadata(buildBlob("system_a", "system_b", "vendor_a", "vendor_b"))
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.SlotCount != 2 {
		t.Errorf("slot count = %d, want 2", meta.SlotCount)
	}
	if meta.LogicalBlockSize != 4096 {
		t.Errorf("logical block size = %d, want 4096", meta.LogicalBlockSize)
	}
	if len(meta.Partitions) != 4 {
		t.Fatalf("partitions = %v", meta.Partitions)
	}
	if meta.Partitions[0] != "system_a" || meta.Partitions[3] != "vendor_b" {
		t.Errorf("partitions = %v", meta.Partitions)
	}
}

func TestReadMetadata_SparseWrapped(t *testing.T) {
	blob := buildBlob("system_a", "system_b")

	// Pad to a block boundary and wrap in the sparse container, the way
	// build systems ship super_empty.img.
	const blockSize = 4096
	padded := make([]byte, (len(blob)+blockSize-1)/blockSize*blockSize)
	copy(padded, blob)
	f := &sparse.File{
		BlockSize:   blockSize,
		TotalBlocks: uint32(len(padded) / blockSize),
		Chunks: []sparse.Chunk{{
			Type:   sparse.ChunkRaw,
			Blocks: uint32(len(padded) / blockSize),
			Data:   padded,
		}},
	}

	meta, err := ReadMetadata(f.Marshal())
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if len(meta.Partitions) != 2 || meta.Partitions[0] != "system_a" {
		t.Errorf("partitions = %v", meta.Partitions)
	}
}

func TestReadMetadata_GeometryAfterReservedArea(t *testing.T) {
	inner := buildBlob("system_a")
	blob := make([]byte, 4096+len(inner))
	copy(blob[4096:], inner)

	meta, err := ReadMetadata(blob)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if len(meta.Partitions) != 1 || meta.Partitions[0] != "system_a" {
		t.Errorf("partitions = %v", meta.Partitions)
	}
}

func TestReadMetadata_BadBlob(t *testing.T) {
	if _, err := ReadMetadata(make([]byte, 8192)); err == nil {
		t.Error("expected error for missing geometry magic")
	}
	if _, err := ReadMetadata(nil); err == nil {
		t.Error("expected error for empty blob")
	}
}

func TestHasPartition(t *testing.T) {
	meta, err := ReadMetadata(buildBlob("system_a", "system_b", "odm_a", "odm_b"))
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}

	tests := []struct {
		name string
		want bool
	}{
		{"system", true},
		{"system_a", true},
		{"system_b", true},
		{"odm", true},
		{"boot", false},
		{"boot_a", false},
	}
	for _, tt := range tests {
		if got := meta.HasPartition(tt.name); got != tt.want {
			t.Errorf("HasPartition(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
