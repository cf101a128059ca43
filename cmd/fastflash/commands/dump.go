package commands

import (
	"context"
	"os"

	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/slot"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <partition> <outfile>",
	Short: "Fetch a partition's contents from the device into a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	selector, _ := cmd.Flags().GetString("slot")
	if selector != "" {
		if selector, err = slot.Verify(ctx, driver, selector, false); err != nil {
			return err
		}
	}
	names, err := slot.Expand(ctx, driver, args[0], selector, false)
	if err != nil {
		return err
	}

	out, err := os.Create(args[1])
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	defer out.Close()

	for _, name := range names {
		if _, err := fastboot.FetchPartition(ctx, driver, name, out); err != nil {
			return err
		}
	}
	return nil
}
