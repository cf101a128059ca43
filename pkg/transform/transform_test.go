package transform

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/sparse"
)

// imageWithFooter builds a raw image of size bytes ending in an AVB
// footer whose vbmeta_offset points at vbmetaOffset.
func imageWithFooter(size, vbmetaOffset int64) []byte {
	data := make([]byte, size)
	footer := data[size-FooterSize:]
	copy(footer, FooterMagic)
	binary.BigEndian.PutUint64(footer[footerVBMetaOffsetField:], uint64(vbmetaOffset))
	return data
}

func TestCopyFooter(t *testing.T) {
	img := imageWithFooter(1024, 0)
	img[0] = 0x7f

	out, moved := CopyFooter(img, 4096)
	if !moved {
		t.Fatal("expected footer relocation")
	}
	if int64(len(out)) != 4096 {
		t.Fatalf("output size = %d, want 4096", len(out))
	}
	if out[0] != 0x7f {
		t.Error("image body not preserved")
	}
	if string(out[4096-FooterSize:4096-FooterSize+4]) != FooterMagic {
		t.Error("footer not at partition end")
	}
}

func TestCopyFooter_NoOp(t *testing.T) {
	tests := []struct {
		name          string
		data          []byte
		partitionSize int64
	}{
		{"no magic", make([]byte, 1024), 4096},
		{"partition not larger", imageWithFooter(1024, 0), 1024},
		{"image too small", make([]byte, 16), 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, moved := CopyFooter(tt.data, tt.partitionSize)
			if moved {
				t.Error("unexpected relocation")
			}
			if !bytes.Equal(out, tt.data) {
				t.Error("bytes changed without relocation")
			}
		})
	}
}

func TestPatchVBMetaFlags_VBMetaImage(t *testing.T) {
	img := make([]byte, 512)
	copy(img, VBMetaMagic)

	out, err := PatchVBMetaFlags(img, false, true, true)
	if err != nil {
		t.Fatalf("PatchVBMetaFlags: %v", err)
	}
	if out[vbmetaFlagsOffset] != FlagDisableVerity|FlagDisableVerification {
		t.Errorf("flags = %#x, want %#x", out[vbmetaFlagsOffset], FlagDisableVerity|FlagDisableVerification)
	}
	if img[vbmetaFlagsOffset] != 0 {
		t.Error("input buffer mutated")
	}
}

func TestPatchVBMetaFlags_VerityOnly(t *testing.T) {
	img := make([]byte, 512)
	copy(img, VBMetaMagic)

	out, err := PatchVBMetaFlags(img, false, true, false)
	if err != nil {
		t.Fatalf("PatchVBMetaFlags: %v", err)
	}
	if out[vbmetaFlagsOffset] != FlagDisableVerity {
		t.Errorf("flags = %#x, want %#x", out[vbmetaFlagsOffset], FlagDisableVerity)
	}
}

func TestPatchVBMetaFlags_InBoot(t *testing.T) {
	const vbmetaOffset = 2048
	img := imageWithFooter(8192, vbmetaOffset)
	copy(img[vbmetaOffset:], VBMetaMagic)

	out, err := PatchVBMetaFlags(img, true, false, true)
	if err != nil {
		t.Fatalf("PatchVBMetaFlags: %v", err)
	}
	if out[vbmetaOffset+vbmetaFlagsOffset] != FlagDisableVerification {
		t.Errorf("flags = %#x, want %#x", out[vbmetaOffset+vbmetaFlagsOffset], FlagDisableVerification)
	}
}

func TestPatchVBMetaFlags_TruncatedStructInBoot(t *testing.T) {
	// Footer points at a vbmeta struct whose flags byte lies past the
	// end of the image. Corrupt, but must come back as an error.
	const size = 256
	img := imageWithFooter(size, size-4)
	copy(img[size-4:], VBMetaMagic)

	if _, err := PatchVBMetaFlags(img, true, true, false); err == nil {
		t.Error("expected error for vbmeta struct running past the image end")
	}
}

func TestPatchVBMetaFlags_MissingMagic(t *testing.T) {
	if _, err := PatchVBMetaFlags(make([]byte, 512), false, true, false); err == nil {
		t.Error("expected error for missing vbmeta magic")
	}
	if _, err := PatchVBMetaFlags(make([]byte, 8192), true, true, false); err == nil {
		t.Error("expected error for missing footer magic")
	}
}

func TestPatchVBMetaFlags_TinyBufferPassesThrough(t *testing.T) {
	img := []byte{1, 2, 3}
	out, err := PatchVBMetaFlags(img, false, true, true)
	if err != nil {
		t.Fatalf("PatchVBMetaFlags: %v", err)
	}
	if !bytes.Equal(out, img) {
		t.Error("tiny buffer changed")
	}
}

func sparseImage(t *testing.T, blocks uint32) []byte {
	t.Helper()
	f := &sparse.File{
		BlockSize:   4096,
		TotalBlocks: blocks,
		Chunks: []sparse.Chunk{{
			Type:   sparse.ChunkRaw,
			Blocks: blocks,
			Data:   bytes.Repeat([]byte{0x5a}, int(blocks)*4096),
		}},
	}
	return f.Marshal()
}

func TestLoadBytes_Raw(t *testing.T) {
	ctx := context.Background()
	data := []byte("just a raw image")

	buf, err := LoadBytes(ctx, fastboot.NewMock(nil), NewLimits(0, false), data)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if buf.Kind != KindRaw {
		t.Fatalf("kind = %d, want raw", buf.Kind)
	}
	if buf.Size != int64(len(data)) || buf.ImageSize != int64(len(data)) {
		t.Errorf("sizes = %d/%d, want %d", buf.Size, buf.ImageSize, len(data))
	}
}

func TestLoadBytes_SparseUnderLimit(t *testing.T) {
	ctx := context.Background()
	img := sparseImage(t, 4)

	buf, err := LoadBytes(ctx, fastboot.NewMock(nil), NewLimits(1<<20, false), img)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if buf.Kind != KindSparse {
		t.Fatalf("kind = %d, want sparse", buf.Kind)
	}
	if len(buf.Chunks) != 1 {
		t.Errorf("chunks = %d, want 1 (no re-chunk)", len(buf.Chunks))
	}
	if buf.ImageSize != 4*4096 {
		t.Errorf("image size = %d, want %d", buf.ImageSize, 4*4096)
	}
}

func TestLoadBytes_SparseOverDeviceLimit(t *testing.T) {
	ctx := context.Background()
	img := sparseImage(t, 8)
	d := fastboot.NewMock(map[string]string{
		fastboot.VarMaxDownloadSize: "12288", // three blocks
	})

	buf, err := LoadBytes(ctx, d, NewLimits(0, false), img)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if len(buf.Chunks) < 2 {
		t.Errorf("chunks = %d, want a re-chunk", len(buf.Chunks))
	}
	for i, c := range buf.Chunks {
		if len(c) > 12288 {
			t.Errorf("chunk %d is %d bytes, over device limit", i, len(c))
		}
	}
}

func TestChunkCeiling_CaptureModeRequiresLimit(t *testing.T) {
	ctx := context.Background()
	l := NewLimits(0, true)

	_, err := l.ChunkCeiling(ctx, fastboot.NewMock(nil), 1<<30)
	if err == nil || !strings.Contains(err.Error(), "sparse limit is not set") {
		t.Fatalf("err = %v, want sparse limit error", err)
	}
}

func TestChunkCeiling_CachesDeviceQuery(t *testing.T) {
	ctx := context.Background()
	d := fastboot.NewMock(map[string]string{
		fastboot.VarMaxDownloadSize: "4096",
	})
	l := NewLimits(0, false)

	limit, err := l.ChunkCeiling(ctx, d, 10000)
	if err != nil {
		t.Fatalf("ChunkCeiling: %v", err)
	}
	if limit != 4096 {
		t.Errorf("limit = %d, want 4096", limit)
	}

	// Re-query with the variable gone: the cached value must hold.
	delete(d.Vars, fastboot.VarMaxDownloadSize)
	limit, err = l.ChunkCeiling(ctx, d, 10000)
	if err != nil {
		t.Fatalf("ChunkCeiling after cache: %v", err)
	}
	if limit != 4096 {
		t.Errorf("cached limit = %d, want 4096", limit)
	}

	l.Reset()
	limit, err = l.ChunkCeiling(ctx, d, 10000)
	if err != nil {
		t.Fatalf("ChunkCeiling after reset: %v", err)
	}
	if limit != 0 {
		t.Errorf("limit after reset = %d, want 0 (device query failed)", limit)
	}
}

func TestRepackRamdisk_PassThrough(t *testing.T) {
	ctx := context.Background()
	buf := &Buffer{Kind: KindRaw, Data: []byte{1}, Size: 1, ImageSize: 1}

	name, err := RepackRamdisk(ctx, fastboot.NewMock(nil), "boot_a", buf, nil)
	if err != nil {
		t.Fatalf("RepackRamdisk: %v", err)
	}
	if name != "boot_a" {
		t.Errorf("name = %q, want boot_a", name)
	}
}

func TestRepackRamdisk_ReplacesFragment(t *testing.T) {
	ctx := context.Background()
	vendorBoot := bytes.Repeat([]byte{0xab}, 64)
	d := fastboot.NewMock(map[string]string{
		fastboot.VarMaxFetchSize:                     "32",
		fastboot.VarPartitionSize + ":vendor_boot_a": "64",
	})
	d.FetchData = map[string][]byte{"vendor_boot_a": vendorBoot}

	newRamdisk := []byte("ramdisk payload")
	buf := &Buffer{Kind: KindRaw, Data: newRamdisk, Size: int64(len(newRamdisk)), ImageSize: int64(len(newRamdisk))}

	var gotName string
	replace := func(img []byte, name string, rd []byte) ([]byte, error) {
		gotName = name
		if !bytes.Equal(img, vendorBoot) {
			t.Error("replacer got wrong vendor_boot bytes")
		}
		out := make([]byte, len(img))
		copy(out, rd)
		return out, nil
	}

	pname, err := RepackRamdisk(ctx, d, "vendor_boot_a:recovery", buf, replace)
	if err != nil {
		t.Fatalf("RepackRamdisk: %v", err)
	}
	if pname != "vendor_boot_a" {
		t.Errorf("partition = %q, want vendor_boot_a", pname)
	}
	if gotName != "recovery" {
		t.Errorf("ramdisk = %q, want recovery", gotName)
	}
	if buf.Size != 64 || int64(len(buf.Data)) != 64 {
		t.Errorf("buffer not replaced with repacked image: size=%d", buf.Size)
	}
}

func TestRepackRamdisk_RejectsSparse(t *testing.T) {
	ctx := context.Background()
	buf := &Buffer{Kind: KindSparse}

	if _, err := RepackRamdisk(ctx, fastboot.NewMock(nil), "vendor_boot:recovery", buf, nil); err == nil {
		t.Error("expected error for sparse vendor ramdisk")
	}
}
