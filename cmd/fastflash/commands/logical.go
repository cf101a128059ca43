package commands

import (
	"context"

	"github.com/fftools/fastflash/pkg/flash"
	"github.com/spf13/cobra"
)

var createLogicalCmd = &cobra.Command{
	Use:   "create-logical-partition <partition> <size>",
	Short: "Create a logical partition inside super",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreateLogical,
}

var deleteLogicalCmd = &cobra.Command{
	Use:   "delete-logical-partition <partition>",
	Short: "Delete a logical partition from super",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteLogical,
}

func init() {
	rootCmd.AddCommand(createLogicalCmd)
	rootCmd.AddCommand(deleteLogicalCmd)
}

func runCreateLogical(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	return driver.CreatePartition(ctx, args[0], args[1])
}

func runDeleteLogical(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	return flash.NewDeleteTask(flash.NewPlan(nil, driver), args[0]).Run(ctx)
}
