package commands

import (
	"context"

	"github.com/fftools/fastflash/internal/config"
	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/security"
	"github.com/fftools/fastflash/pkg/source"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <package.zip>",
	Short: "Flash every image from a factory package",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	validator := security.NewValidator(cfg.MaxEntrySize, cfg.MaxTotalSize, cfg.MaxCompressionRatio)
	src, err := source.OpenZipSource(args[0], validator)
	if err != nil {
		return errors.Wrap(err, "failed to open package")
	}
	defer src.Close()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	return makePlan(cmd, src, driver).FlashAll(ctx)
}
