// Package flash builds and runs the ordered task sequence that
// installs a firmware package onto a device.
package flash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fftools/fastflash/pkg/catalog"
	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/slot"
	"github.com/fftools/fastflash/pkg/source"
	"github.com/fftools/fastflash/pkg/super"
	"github.com/fftools/fastflash/pkg/transform"
)

// Plan is the per-invocation flashing configuration, shared by
// reference across every task of one run. The resolved slots are only
// valid once DetermineSlot has run; tasks must not read them earlier.
type Plan struct {
	Source source.ImageSource
	Driver fastboot.Driver

	// Entries is this run's private copy of the image catalog. The
	// requirements gate may mark entries mandatory in place.
	Entries []catalog.Entry

	// Limits carries the sparse re-chunk state, reset on reboot into
	// userspace fastboot.
	Limits *transform.Limits

	// SlotOverride is the caller's slot selector; empty means the
	// device's current slot.
	SlotOverride string
	// CurrentSlot and SecondarySlot are resolved by DetermineSlot.
	CurrentSlot   string
	SecondarySlot string

	SkipSecondary bool
	SkipReboot    bool
	Wipe          bool
	Force         bool

	DisableVerity            bool
	DisableVerification      bool
	DisableSuperOptimization bool
	DisableFastbootInfo      bool
	ExcludeDynamicPartitions bool

	// RamdiskReplacer rewrites vendor boot images for
	// vendor_boot:<ramdisk> flash targets.
	RamdiskReplacer transform.RamdiskReplacer

	superMeta       *super.Metadata
	superMetaLoaded bool
}

// NewPlan creates a plan over a source and a connected driver.
func NewPlan(src source.ImageSource, d fastboot.Driver) *Plan {
	return &Plan{
		Source:  src,
		Driver:  d,
		Entries: catalog.Table(),
		Limits:  transform.NewLimits(0, false),
	}
}

// superMetadata lazily reads and caches super_empty.img's partition
// table. A package without one simply has no dynamic partitions.
func (p *Plan) superMetadata() *super.Metadata {
	if p.superMetaLoaded {
		return p.superMeta
	}
	p.superMetaLoaded = true

	blob, err := p.Source.ReadFile("super_empty.img")
	if err != nil {
		if !errors.Is(err, source.ErrNotFound) {
			slog.Warn("super_empty_unreadable", "error", err)
		}
		return nil
	}
	meta, err := super.ReadMetadata(blob)
	if err != nil {
		slog.Warn("super_empty_unparseable", "error", err)
		return nil
	}
	p.superMeta = meta
	return meta
}

// ShouldFlashInUserspace reports whether a partition lives inside the
// super partition per the package's own table. Unlike is-logical this
// works in bootloader fastboot too.
func (p *Plan) ShouldFlashInUserspace(partition string) bool {
	meta := p.superMetadata()
	return meta != nil && meta.HasPartition(partition)
}

// RebootToUserspace reboots into the userspace flashing agent and
// waits for it to come back. Max download sizes may differ between
// bootloader and userspace, so the cached sparse limit is dropped.
func (p *Plan) RebootToUserspace(ctx context.Context) error {
	slog.Info("reboot_to_userspace")
	if err := p.Driver.RebootTo(ctx, "fastboot"); err != nil {
		return err
	}

	// Give the current connection time to close.
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.Driver.Reconnect(ctx); err != nil {
		return err
	}
	if !fastboot.IsUserspace(ctx, p.Driver) {
		return fmt.Errorf("failed to boot into userspace fastboot; one or more components might be unbootable")
	}
	p.Limits.Reset()
	return nil
}

// SetActive marks a slot active, defaulting to the current one. A
// no-op on non-A/B devices. Clears slot-unbootable as a side effect.
func (p *Plan) SetActive(ctx context.Context, selector string) error {
	if !slot.SupportsAB(ctx, p.Driver) {
		return nil
	}
	if selector == "" {
		selector = slot.Current(ctx, p.Driver)
		if selector == "" {
			return nil
		}
	}
	return p.Driver.SetActive(ctx, selector)
}

// DetermineSlot resolves the plan's current and secondary slots from
// the override and the device. On a device without a usable secondary
// slot, secondary-image work is disabled with a warning.
func (p *Plan) DetermineSlot(ctx context.Context) {
	if p.SlotOverride == "" {
		p.CurrentSlot = slot.Current(ctx, p.Driver)
	} else {
		p.CurrentSlot = p.SlotOverride
	}

	if p.SkipSecondary {
		return
	}
	count := slot.Count(ctx, p.Driver)
	if p.SlotOverride != "" && p.SlotOverride != "all" {
		p.SecondarySlot = slot.Other(p.SlotOverride, count)
	} else {
		p.SecondarySlot = slot.Other(slot.Current(ctx, p.Driver), count)
	}
	if p.SecondarySlot == "" {
		if slot.SupportsAB(ctx, p.Driver) {
			slog.Warn("secondary_slot_unknown", "detail", "ignoring secondary images")
		}
		p.SkipSecondary = true
	}
}

// CancelSnapshotIfNeeded aborts an in-progress snapshot-based update.
// Flashing over a half-merged update would corrupt both copies.
func (p *Plan) CancelSnapshotIfNeeded(ctx context.Context) error {
	status, err := p.Driver.GetVar(ctx, fastboot.VarSnapshotUpdateStatus)
	if err != nil || status == "" || status == "none" {
		return nil
	}
	slog.Info("snapshot_update_cancel", "status", status)
	return p.Driver.SnapshotUpdateCommand(ctx, "cancel")
}
