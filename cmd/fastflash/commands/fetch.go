package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/fftools/fastflash/internal/config"
	"github.com/fftools/fastflash/pkg/db"
	"github.com/fftools/fastflash/pkg/errors"
	appfsm "github.com/fftools/fastflash/pkg/fsm"
	"github.com/fftools/fastflash/pkg/security"
	"github.com/fftools/fastflash/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <package-key>",
	Short: "Fetch a factory package from S3 and verify it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().String("sha256", "", "Expected package checksum")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	packageKey := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.WorkDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	s3Client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return errors.Wrap(err, "S3 client failed")
	}

	validator := security.NewValidator(cfg.MaxEntrySize, cfg.MaxTotalSize, cfg.MaxCompressionRatio)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(repo, s3Client, validator, cfg.WorkDir, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	expectedSHA, _ := cmd.Flags().GetString("sha256")
	req := &appfsm.PackageRequest{
		S3Key:          packageKey,
		S3Bucket:       cfg.S3Bucket,
		ExpectedSHA256: expectedSHA,
	}
	resp := &appfsm.PackageResponse{}

	version, err := start(ctx, packageKey, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}
	slog.Info("fsm_started", "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "FSM execution failed")
	}

	slog.Info("fetch_complete", "status", resp.Status, "local_path", resp.LocalPath, "sha256", resp.SHA256)
	return nil
}
