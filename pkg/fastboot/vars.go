package fastboot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Well-known device variable names.
const (
	VarProduct              = "product"
	VarCurrentSlot          = "current-slot"
	VarSlotCount            = "slot-count"
	VarHasSlot              = "has-slot"
	VarIsLogical            = "is-logical"
	VarIsUserspace          = "is-userspace"
	VarPartitionType        = "partition-type"
	VarPartitionSize        = "partition-size"
	VarMaxDownloadSize      = "max-download-size"
	VarMaxFetchSize         = "max-fetch-size"
	VarSnapshotUpdateStatus = "snapshot-update-status"
	VarSuperPartitionName   = "super-partition-name"
)

// fixNumericVar normalizes a device-reported numeric string. Some
// bootloaders report sizes in hex with a 0x prefix, some with stray
// whitespace.
func fixNumericVar(value string) string {
	return strings.TrimSpace(value)
}

// parseUint accepts decimal and 0x-prefixed hex.
func parseUint(value string) (uint64, error) {
	return strconv.ParseUint(fixNumericVar(value), 0, 64)
}

// GetUintVar reads a numeric variable. Devices that do not report the
// variable yield zero, which callers treat as "no limit known".
func GetUintVar(ctx context.Context, d VarGetter, name string) uint64 {
	value, err := d.GetVar(ctx, name)
	if err != nil || value == "" {
		slog.Debug("var_not_reported", "var", name)
		return 0
	}
	n, err := parseUint(value)
	if err != nil {
		slog.Warn("var_not_numeric", "var", name, "value", value)
		return 0
	}
	return n
}

// IsUserspace reports whether the device is running the userspace
// flashing agent rather than the bootloader.
func IsUserspace(ctx context.Context, d VarGetter) bool {
	value, err := d.GetVar(ctx, VarIsUserspace)
	return err == nil && value == "yes"
}

// IsLogical reports whether a partition is a dynamic (super-contained)
// partition. Only meaningful in userspace fastboot.
func IsLogical(ctx context.Context, d VarGetter, partition string) bool {
	value, err := d.GetVar(ctx, VarIsLogical+":"+partition)
	return err == nil && value == "yes"
}

// PartitionSize reads a partition's size in bytes. A device that does
// not report the size of a static partition yields zero; for a logical
// partition the size must be known, so failure there is an error.
func PartitionSize(ctx context.Context, d VarGetter, partition string) (uint64, error) {
	value, err := d.GetVar(ctx, VarPartitionSize+":"+partition)
	if err != nil {
		if !IsLogical(ctx, d, partition) {
			return 0, nil
		}
		return 0, fmt.Errorf("cannot get partition size for %s: %w", partition, err)
	}
	size, err := parseUint(value)
	if err != nil {
		if !IsLogical(ctx, d, partition) {
			return 0, nil
		}
		return 0, fmt.Errorf("couldn't parse partition size %q for %s", value, partition)
	}
	return size, nil
}

// HasVBMetaPartition reports whether the device exposes a dedicated
// vbmeta partition on any slot.
func HasVBMetaPartition(ctx context.Context, d VarGetter) bool {
	for _, name := range []string{"vbmeta", "vbmeta_a", "vbmeta_b"} {
		if _, err := d.GetVar(ctx, VarPartitionType+":"+name); err == nil {
			return true
		}
	}
	return false
}

// IsVBMetaPartition reports whether a partition name is vbmeta-shaped,
// which decides whether verity flags are patched in its image.
func IsVBMetaPartition(partition string) bool {
	return strings.HasSuffix(partition, "vbmeta") ||
		strings.HasSuffix(partition, "vbmeta_a") ||
		strings.HasSuffix(partition, "vbmeta_b")
}

// FetchPartition streams a whole partition from the device into w,
// honoring the device's max-fetch-size. Returns the partition size.
func FetchPartition(ctx context.Context, d Driver, partition string, w io.Writer) (int64, error) {
	fetchSize := GetUintVar(ctx, d, VarMaxFetchSize)
	if fetchSize == 0 {
		return 0, fmt.Errorf("unable to get %s; device does not support fetch", VarMaxFetchSize)
	}
	partitionSize, err := PartitionSize(ctx, d, partition)
	if err != nil {
		return 0, err
	}
	if partitionSize == 0 {
		return 0, fmt.Errorf("invalid partition size for partition %s", partition)
	}

	var offset uint64
	for offset < partitionSize {
		chunk := min(fetchSize, partitionSize-offset)
		if err := d.FetchToWriter(ctx, partition, int64(offset), int64(chunk), w); err != nil {
			return 0, fmt.Errorf("unable to fetch %s (offset=%#x, size=%#x): %w",
				partition, offset, chunk, err)
		}
		offset += chunk
	}
	return int64(partitionSize), nil
}
