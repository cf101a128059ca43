package commands

import (
	"context"
	"fmt"

	"github.com/fftools/fastflash/pkg/slot"
	"github.com/spf13/cobra"
)

var rebootCmd = &cobra.Command{
	Use:       "reboot [bootloader|recovery|fastboot]",
	Short:     "Reboot the device, optionally into a named target",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"bootloader", "recovery", "fastboot"},
	RunE:      runReboot,
}

var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "Let the bootloader proceed with the normal boot",
	Args:  cobra.NoArgs,
	RunE:  runContinue,
}

var setActiveCmd = &cobra.Command{
	Use:   "set-active <slot>",
	Short: "Mark a slot active",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetActive,
}

func init() {
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(continueCmd)
	rootCmd.AddCommand(setActiveCmd)
}

func runReboot(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	if len(args) == 0 {
		return driver.Reboot(ctx)
	}
	return driver.RebootTo(ctx, args[0])
}

func runContinue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	return driver.Continue(ctx)
}

func runSetActive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	resolved, err := slot.Verify(ctx, driver, args[0], false)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Setting active slot to %s\n", resolved)
	return driver.SetActive(ctx, resolved)
}
