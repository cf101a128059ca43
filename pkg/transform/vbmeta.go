package transform

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// Verity flag bits in the vbmeta header flags byte.
const (
	FlagDisableVerity       = 0x01
	FlagDisableVerification = 0x02
)

// PatchVBMetaFlags sets the requested disable bits in an image's
// vbmeta header. For a vbmeta image the header sits at offset 0. For a
// boot image on a device without a dedicated vbmeta partition
// (inBoot), the header is found through the appended footer's
// vbmeta_offset field. A magic missing at a computed offset is fatal:
// the image is corrupt or incompatible and must not be flashed.
// Buffers too small to hold a vbmeta struct pass through untouched.
func PatchVBMetaFlags(data []byte, inBoot, disableVerity, disableVerification bool) ([]byte, error) {
	if int64(len(data)) < vbmetaMinSize {
		return data, nil
	}

	var vbmetaOffset int64
	if inBoot {
		footerOffset := int64(len(data)) - FooterSize
		if string(data[footerOffset:footerOffset+int64(len(FooterMagic))]) != FooterMagic {
			return nil, fmt.Errorf("failed to find %s at offset %d; is verified boot enabled for this image?",
				FooterMagic, footerOffset)
		}
		vbmetaOffset = int64(binary.BigEndian.Uint64(data[footerOffset+footerVBMetaOffsetField:]))
	}

	if vbmetaOffset+int64(len(VBMetaMagic)) > int64(len(data)) ||
		string(data[vbmetaOffset:vbmetaOffset+int64(len(VBMetaMagic))]) != VBMetaMagic {
		return nil, fmt.Errorf("failed to find %s at offset %d", VBMetaMagic, vbmetaOffset)
	}
	if vbmetaOffset+vbmetaFlagsOffset >= int64(len(data)) {
		return nil, fmt.Errorf("%s struct at offset %d runs past the end of the image", VBMetaMagic, vbmetaOffset)
	}

	slog.Info("vbmeta_rewrite", "offset", vbmetaOffset,
		"disable_verity", disableVerity, "disable_verification", disableVerification)

	out := make([]byte, len(data))
	copy(out, data)
	flags := &out[vbmetaOffset+vbmetaFlagsOffset]
	if disableVerity {
		*flags |= FlagDisableVerity
	}
	if disableVerification {
		*flags |= FlagDisableVerification
	}
	return out, nil
}
