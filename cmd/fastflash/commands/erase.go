package commands

import (
	"context"

	"github.com/fftools/fastflash/pkg/slot"
	"github.com/spf13/cobra"
)

var eraseCmd = &cobra.Command{
	Use:   "erase <partition>",
	Short: "Erase a partition",
	Args:  cobra.ExactArgs(1),
	RunE:  runErase,
}

func init() {
	rootCmd.AddCommand(eraseCmd)
}

func runErase(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	selector, _ := cmd.Flags().GetString("slot")
	if selector != "" {
		if selector, err = slot.Verify(ctx, driver, selector, true); err != nil {
			return err
		}
	}
	names, err := slot.Expand(ctx, driver, args[0], selector, false)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := driver.Erase(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
