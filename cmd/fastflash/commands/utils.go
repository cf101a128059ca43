package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/flash"
	"github.com/fftools/fastflash/pkg/source"
	"github.com/spf13/cobra"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath, workDir string) error {
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create work directory")
		}
	}
	return nil
}

// openDriver dials the device named by --device, waiting for it to
// appear.
func openDriver(ctx context.Context, cmd *cobra.Command) (*fastboot.Client, error) {
	addr, _ := cmd.Flags().GetString("device")
	client, err := fastboot.DialTCP(ctx, addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to device")
	}
	return client, nil
}

// makePlan builds a flashing plan from the run flags.
func makePlan(cmd *cobra.Command, src source.ImageSource, driver fastboot.Driver) *flash.Plan {
	p := flash.NewPlan(src, driver)
	p.SlotOverride, _ = cmd.Flags().GetString("slot")
	p.Wipe, _ = cmd.Flags().GetBool("wipe")
	p.Force, _ = cmd.Flags().GetBool("force")
	p.SkipSecondary, _ = cmd.Flags().GetBool("skip-secondary")
	p.SkipReboot, _ = cmd.Flags().GetBool("skip-reboot")
	p.DisableVerity, _ = cmd.Flags().GetBool("disable-verity")
	p.DisableVerification, _ = cmd.Flags().GetBool("disable-verification")
	p.DisableSuperOptimization, _ = cmd.Flags().GetBool("disable-super-optimization")
	p.DisableFastbootInfo, _ = cmd.Flags().GetBool("disable-fastboot-info")
	p.ExcludeDynamicPartitions, _ = cmd.Flags().GetBool("exclude-dynamic-partitions")
	p.Limits.SparseLimit, _ = cmd.Flags().GetInt64("sparse-limit")
	return p
}
