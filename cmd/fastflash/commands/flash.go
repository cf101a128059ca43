package commands

import (
	"context"
	"path/filepath"

	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/flash"
	"github.com/fftools/fastflash/pkg/slot"
	"github.com/fftools/fastflash/pkg/source"
	"github.com/spf13/cobra"
)

var flashCmd = &cobra.Command{
	Use:   "flash <partition> [image-file]",
	Short: "Flash one image to one partition",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runFlash,
}

func init() {
	flashCmd.Flags().Bool("apply-vbmeta", false, "Patch verity flags into this image")
	rootCmd.AddCommand(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	partition := args[0]

	imagePath := partition + ".img"
	if len(args) == 2 {
		imagePath = args[1]
	}
	dir, file := filepath.Split(imagePath)
	if dir == "" {
		dir = "."
	}
	src, err := source.NewDirSource(dir)
	if err != nil {
		return errors.Wrap(err, "image directory")
	}

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	p := makePlan(cmd, src, driver)
	if p.SlotOverride != "" {
		if p.SlotOverride, err = slot.Verify(ctx, driver, p.SlotOverride, true); err != nil {
			return err
		}
	}

	applyVBMeta, _ := cmd.Flags().GetBool("apply-vbmeta")
	applyVBMeta = applyVBMeta || fastboot.IsVBMetaPartition(partition)

	return flash.NewFlashTask(p, p.SlotOverride, partition, file, applyVBMeta).Run(ctx)
}
