package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var getvarCmd = &cobra.Command{
	Use:   "getvar <name>",
	Short: "Read a device variable",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetvar,
}

func init() {
	rootCmd.AddCommand(getvarCmd)
}

func runGetvar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	driver, err := openDriver(ctx, cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	value, err := driver.GetVar(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", args[0], value)
	return nil
}
