package flash

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/require"
	"github.com/fftools/fastflash/pkg/slot"
)

// FlashAll runs a complete package installation: requirements gate,
// slot determination, task graph construction, and strictly sequential
// execution. The first failure terminates the run; there is no
// rollback, and re-running is the recovery path.
func (p *Plan) FlashAll(ctx context.Context) error {
	// Resolve the slot selector before anything touches the device:
	// "other" becomes a concrete letter and a bad letter is a usage
	// error, not a set_active the bootloader rejects.
	if p.SlotOverride != "" {
		resolved, err := slot.Verify(ctx, p.Driver, p.SlotOverride, true)
		if err != nil {
			return err
		}
		p.SlotOverride = resolved
	}

	p.DumpInfo(ctx)

	if err := p.CheckRequirements(ctx); err != nil {
		return err
	}

	// Change the slot first, so the device boots into the correct
	// recovery image when rebooting into userspace fastboot.
	active := p.SlotOverride
	if active == "all" {
		active = "a"
	}
	if err := p.SetActive(ctx, active); err != nil {
		return err
	}
	p.DetermineSlot(ctx)

	if err := p.CancelSnapshotIfNeeded(ctx); err != nil {
		return err
	}

	tasks, err := p.CollectTasks(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := task.Run(ctx); err != nil {
			return err
		}
	}

	if p.Wipe {
		for _, partition := range []string{"userdata", "cache", "metadata"} {
			if partition != "userdata" && !p.hasPartitionType(ctx, partition) {
				continue
			}
			if err := NewWipeTask(p, partition).Run(ctx); err != nil {
				return err
			}
		}
	}

	if !p.SkipReboot {
		return p.Driver.Reboot(ctx)
	}
	return nil
}

// CheckRequirements runs the package's device-declaration script. A
// package without one is not installable.
func (p *Plan) CheckRequirements(ctx context.Context) error {
	contents, err := p.Source.ReadFile("android-info.txt")
	if err != nil {
		return fmt.Errorf("could not read android-info.txt: %w", err)
	}
	return require.NewGate(p.Driver, p.Entries, p.Force).Check(ctx, contents)
}

// DumpInfo logs the device's identifying variables. Purely
// informational; devices that don't report them are fine.
func (p *Plan) DumpInfo(ctx context.Context) {
	for label, name := range map[string]string{
		"bootloader_version": "version-bootloader",
		"baseband_version":   "version-baseband",
		"serial_number":      "serialno",
	} {
		value, err := p.Driver.GetVar(ctx, name)
		if err != nil {
			slog.Info("device_info_unavailable", "var", name, "error", err)
			continue
		}
		slog.Info("device_info", label, value)
	}
}

func (p *Plan) hasPartitionType(ctx context.Context, partition string) bool {
	value, err := p.Driver.GetVar(ctx, fastboot.VarPartitionType+":"+partition)
	return err == nil && value != ""
}
