package commands

import (
	"fmt"

	"github.com/fftools/fastflash/pkg/errors"
	"github.com/spf13/cobra"
)

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List fetched packages and their status",
	RunE:  runPackages,
}

func init() {
	rootCmd.AddCommand(packagesCmd)
}

func runPackages(cmd *cobra.Command, args []string) error {
	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	packages, err := repo.ListPackages()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	if len(packages) == 0 {
		fmt.Println("No packages found")
		return nil
	}

	fmt.Printf("%-40s %-12s %-18s %-40s\n", "S3 KEY", "STATUS", "SHA256", "LOCAL PATH")
	for _, pkg := range packages {
		sha := pkg.SHA256
		if len(sha) > 16 {
			sha = sha[:16]
		}
		if sha == "" {
			sha = "-"
		}
		localPath := pkg.LocalPath
		if localPath == "" {
			localPath = "-"
		}
		fmt.Printf("%-40s %-12s %-18s %-40s\n", pkg.S3Key, pkg.Status, sha, localPath)
	}
	return nil
}
