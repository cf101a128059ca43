package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "fastflash",
	Short: "Firmware flashing over the fastboot protocol",
	Long:  `Installs firmware packages onto partitioned devices over the fastboot protocol, with S3 package fetching and a local package registry.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Device and run options, read per invocation.
	rootCmd.PersistentFlags().StringP("device", "d", "127.0.0.1:5554", "Device network address")
	rootCmd.PersistentFlags().String("slot", "", "Slot selector: a, b, other, all")
	rootCmd.PersistentFlags().BoolP("wipe", "w", false, "Wipe userdata after flashing")
	rootCmd.PersistentFlags().Bool("force", false, "Continue past requirement mismatches and dynamic-partition checks")
	rootCmd.PersistentFlags().Bool("skip-secondary", false, "Skip secondary-slot images")
	rootCmd.PersistentFlags().Bool("skip-reboot", false, "Do not reboot after finishing")
	rootCmd.PersistentFlags().Int64P("sparse-limit", "S", 0, "Sparse re-chunk ceiling in bytes (0 asks the device)")
	rootCmd.PersistentFlags().Bool("disable-verity", false, "Set the disable-verity flag in vbmeta images")
	rootCmd.PersistentFlags().Bool("disable-verification", false, "Set the disable-verification flag in vbmeta images")
	rootCmd.PersistentFlags().Bool("disable-super-optimization", false, "Do not collapse dynamic-partition flashes into one super rewrite")
	rootCmd.PersistentFlags().Bool("disable-fastboot-info", false, "Ignore fastboot-info.txt and flash from the image catalog")
	rootCmd.PersistentFlags().Bool("exclude-dynamic-partitions", false, "Flash static partitions only")

	// Configuration flags, merged with environment and config file.
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/fastflash.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("s3-bucket", "fastflash-factory-packages", "S3 package bucket name")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().Int64("max-entry-size", 4*1024*1024*1024, "Max package entry size in bytes")
	rootCmd.PersistentFlags().Int64("max-total-size", 20*1024*1024*1024, "Max total extraction size")
	rootCmd.PersistentFlags().Float64("max-compression-ratio", 100.0, "Max compression ratio")

	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("max-entry-size", rootCmd.PersistentFlags().Lookup("max-entry-size"))
	viper.BindPFlag("max-total-size", rootCmd.PersistentFlags().Lookup("max-total-size"))
	viper.BindPFlag("max-compression-ratio", rootCmd.PersistentFlags().Lookup("max-compression-ratio"))
}
