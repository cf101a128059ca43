package transform

// Verified-boot binary layout constants, from the AVB image format.
const (
	// FooterSize is the fixed trailer ending at image end.
	FooterSize = 64
	// FooterMagic opens the trailer.
	FooterMagic = "AVBf"
	// VBMetaMagic opens a vbmeta header.
	VBMetaMagic = "AVB0"
	// footerVBMetaOffsetField is where the big-endian 64-bit
	// vbmeta_offset lives inside the footer.
	footerVBMetaOffsetField = 20
	// vbmetaFlagsOffset is the one-byte flags field inside a vbmeta
	// header: bit 0 disables verity, bit 1 disables verification.
	vbmetaFlagsOffset = 123
	// vbmetaMinSize is the smallest buffer that can hold a vbmeta
	// struct worth patching.
	vbmetaMinSize = 256
)

// CopyFooter relocates a verified-boot footer to the tail of a grown
// partition. When the image carries a footer at its current end and
// the partition is larger than the image, the device expects the
// footer at partition end; the returned buffer is padded with zeros up
// to partitionSize with the footer moved there. A missing footer magic
// is not an error: the image simply has no footer, and the original
// bytes come back unchanged.
func CopyFooter(data []byte, partitionSize int64) ([]byte, bool) {
	size := int64(len(data))
	if size < FooterSize || partitionSize <= size {
		return data, false
	}

	footerOffset := size - FooterSize
	if string(data[footerOffset:footerOffset+int64(len(FooterMagic))]) != FooterMagic {
		return data, false
	}

	out := make([]byte, partitionSize)
	copy(out, data)
	copy(out[partitionSize-FooterSize:], data[footerOffset:])
	return out, true
}
