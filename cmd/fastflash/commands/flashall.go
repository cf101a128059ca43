package commands

import (
	"context"

	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/source"
	"github.com/spf13/cobra"
)

var flashallCmd = &cobra.Command{
	Use:   "flashall <product-out-dir>",
	Short: "Flash every image from a build-output directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlashall,
}

func init() {
	rootCmd.AddCommand(flashallCmd)
}

func runFlashall(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	src, err := source.NewDirSource(args[0])
	if err != nil {
		return errors.Wrap(err, "product output directory")
	}

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	return makePlan(cmd, src, driver).FlashAll(ctx)
}
