// Package fastboot drives a bootloader or userspace flashing agent
// over the fastboot request/response protocol.
package fastboot

import (
	"context"
	"io"
)

// Driver is the RPC surface a flashing plan needs from a device.
// Every call blocks until the device acknowledges or fails; the error
// carries the device-reported message verbatim.
type Driver interface {
	// GetVar queries a device variable.
	GetVar(ctx context.Context, name string) (string, error)

	// Download stages data in the device's transfer buffer.
	Download(ctx context.Context, label string, data []byte) error

	// FlashPartition downloads and flashes one buffer. current and
	// total number sparse sub-operations (1-based); both zero for a
	// single whole-image write.
	FlashPartition(ctx context.Context, partition string, data []byte, current, total int) error

	// Erase erases a partition.
	Erase(ctx context.Context, partition string) error

	// ResizePartition resizes a logical partition.
	ResizePartition(ctx context.Context, partition, size string) error

	// CreatePartition creates a logical partition.
	CreatePartition(ctx context.Context, partition, size string) error

	// DeletePartition deletes a logical partition.
	DeletePartition(ctx context.Context, partition string) error

	// SetActive marks a slot active and clears slot-unbootable.
	SetActive(ctx context.Context, slot string) error

	// Reboot reboots the device.
	Reboot(ctx context.Context) error

	// RebootTo reboots into the named target (bootloader, fastboot,
	// recovery, ...).
	RebootTo(ctx context.Context, target string) error

	// FetchToWriter streams length bytes of a partition, starting at
	// offset, into w.
	FetchToWriter(ctx context.Context, partition string, offset, length int64, w io.Writer) error

	// RawCommand sends a bare protocol command. statusMsg names the
	// operation in logs and errors.
	RawCommand(ctx context.Context, cmd, statusMsg string) error

	// SnapshotUpdateCommand issues snapshot-update with a subcommand.
	SnapshotUpdateCommand(ctx context.Context, subcommand string) error

	// Continue tells the bootloader to proceed with the normal boot.
	Continue(ctx context.Context) error

	// Upload reads the staged upload buffer from the device.
	Upload(ctx context.Context, w io.Writer) error

	// Reconnect re-establishes the transport, waiting for the device
	// to come back. Used after rebooting into userspace fastboot.
	Reconnect(ctx context.Context) error
}

// VarGetter is the read-only subset of Driver used by components that
// only query device state.
type VarGetter interface {
	GetVar(ctx context.Context, name string) (string, error)
}
