package commands

import (
	"context"
	"fmt"

	"github.com/fftools/fastflash/internal/config"
	"github.com/fftools/fastflash/pkg/db"
	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List remembered network devices",
	RunE:  runDevices,
}

var connectCmd = &cobra.Command{
	Use:   "connect <address>",
	Short: "Connect to a network device and remember it",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnect,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <address>",
	Short: "Forget a remembered network device",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisconnect,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}

func openRepository() (*db.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return nil, err
	}
	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}
	return repo, nil
}

func runDevices(cmd *cobra.Command, args []string) error {
	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	devices, err := repo.ListDevices()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	if len(devices) == 0 {
		fmt.Println("No remembered devices")
		return nil
	}

	fmt.Printf("%-30s %-25s %-25s\n", "ADDRESS", "ADDED", "LAST SEEN")
	for _, d := range devices {
		lastSeen := d.LastSeen
		if lastSeen == "" {
			lastSeen = "-"
		}
		fmt.Printf("%-30s %-25s %-25s\n", d.Address, d.AddedAt, lastSeen)
	}
	return nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	address := args[0]

	client, err := fastboot.DialTCP(ctx, address)
	if err != nil {
		return errors.Wrap(err, "failed to connect to device")
	}
	defer client.Close()

	product, err := client.GetVar(ctx, fastboot.VarProduct)
	if err != nil {
		return errors.Wrap(err, "device did not answer getvar")
	}

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.RememberDevice(address); err != nil {
		return err
	}
	fmt.Printf("connected to %s (%s)\n", address, product)
	return nil
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.ForgetDevice(args[0]); err != nil {
		return err
	}
	fmt.Printf("disconnected %s\n", args[0])
	return nil
}
