package transform

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/fftools/fastflash/pkg/fastboot"
)

// RamdiskReplacer rewrites a vendor boot image, replacing the named
// ramdisk fragment with newRamdisk. Supplied by the caller; boot-image
// container rewriting is outside this tool.
type RamdiskReplacer func(vendorBoot []byte, ramdiskName string, newRamdisk []byte) ([]byte, error)

// RepackRamdisk handles flash targets of the form
// vendor_boot[_a|_b]:<ramdisk>. The current vendor_boot image is
// fetched from the device, the named fragment is replaced with the
// buffer's bytes, and the buffer becomes the repacked whole image.
// Returns the real partition name to flash. Targets of any other
// shape pass through untouched.
func RepackRamdisk(ctx context.Context, d fastboot.Driver, pname string, buf *Buffer, replace RamdiskReplacer) (string, error) {
	if !strings.HasPrefix(pname, "vendor_boot:") &&
		!strings.HasPrefix(pname, "vendor_boot_a:") &&
		!strings.HasPrefix(pname, "vendor_boot_b:") {
		return pname, nil
	}
	if buf.Kind != KindRaw {
		return "", fmt.Errorf("flashing sparse vendor ramdisk image is not supported")
	}
	if buf.Size <= 0 {
		return "", fmt.Errorf("vendor ramdisk image is empty")
	}
	if replace == nil {
		return "", fmt.Errorf("no vendor ramdisk rewriter available")
	}

	colon := strings.Index(pname, ":")
	partition, ramdisk := pname[:colon], pname[colon+1:]

	var vendorBoot bytes.Buffer
	size, err := fastboot.FetchPartition(ctx, d, partition, &vendorBoot)
	if err != nil {
		return "", err
	}

	repacked, err := replace(vendorBoot.Bytes(), ramdisk, buf.Data)
	if err != nil {
		return "", err
	}
	if int64(len(repacked)) != size {
		return "", fmt.Errorf("repacked %s is %d bytes, expected %d", partition, len(repacked), size)
	}

	buf.Data = repacked
	buf.Size = size
	buf.ImageSize = size
	return partition, nil
}
