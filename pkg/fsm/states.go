package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fftools/fastflash/pkg/db"
	"github.com/fftools/fastflash/pkg/errors"
	"github.com/fftools/fastflash/pkg/security"
	"github.com/fftools/fastflash/pkg/source"
	"github.com/fftools/fastflash/pkg/storage"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions.
type Machine struct {
	repo       *db.Repository
	s3Client   *storage.Client
	validator  *security.Validator
	workDir    string
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies.
func NewMachine(
	repo *db.Repository,
	s3Client *storage.Client,
	validator *security.Validator,
	workDir string,
	maxRetries int,
) *Machine {
	return &Machine{
		repo:       repo,
		s3Client:   s3Client,
		validator:  validator,
		workDir:    workDir,
		maxRetries: maxRetries,
	}
}

func (m *Machine) checkRetries(ctx context.Context, s3Key string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "s3_key", s3Key, "max_retries", m.maxRetries)
		return fmt.Errorf("max retries (%d) exceeded", m.maxRetries)
	}
	return nil
}

// handleCheckDB checks whether the package is already fetched
// (idempotency) and creates the pending record otherwise.
func (m *Machine) handleCheckDB(ctx context.Context, req *fsm.Request[PackageRequest, PackageResponse]) (*fsm.Response[PackageResponse], error) {
	slog.Info("fsm_state_check_db", "s3_key", req.Msg.S3Key)

	if err := m.checkRetries(ctx, req.Msg.S3Key); err != nil {
		return nil, fsm.Abort(err)
	}

	pkg, err := m.repo.GetPackageByKey(req.Msg.S3Key)
	if err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "database error"))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &PackageResponse{}
	}

	if pkg != nil {
		resp.PackageID = pkg.ID
		resp.SHA256 = pkg.SHA256
		resp.LocalPath = pkg.LocalPath
		resp.Status = pkg.Status

		if pkg.Status == db.StatusReady {
			slog.Info("package_already_ready", "s3_key", req.Msg.S3Key, "package_id", pkg.ID)
			return fsm.NewResponse(resp), nil
		}
		slog.Info("package_found_continue", "s3_key", req.Msg.S3Key, "package_id", pkg.ID, "status", pkg.Status)
	} else {
		pkg = &db.Package{
			S3Key:  req.Msg.S3Key,
			SHA256: "",
			Status: db.StatusPending,
		}
		if err := m.repo.CreatePackage(pkg); err != nil {
			return nil, errors.Wrap(err, "failed to create package record")
		}
		resp.PackageID = pkg.ID
		slog.Info("package_created", "s3_key", req.Msg.S3Key, "package_id", pkg.ID)
	}

	return fsm.NewResponse(resp), nil
}

// handleDownload fetches the package from S3 into the work directory.
func (m *Machine) handleDownload(ctx context.Context, req *fsm.Request[PackageRequest, PackageResponse]) (*fsm.Response[PackageResponse], error) {
	slog.Info("fsm_state_download", "s3_key", req.Msg.S3Key)

	if err := m.checkRetries(ctx, req.Msg.S3Key); err != nil {
		return nil, fsm.Abort(err)
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdatePackageStatus(resp.PackageID, db.StatusDownloading, ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}

	downloadDir := filepath.Join(m.workDir, "packages")
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create download dir")
	}

	localPath := filepath.Join(downloadDir, filepath.Base(req.Msg.S3Key))
	result, err := m.s3Client.Download(ctx, req.Msg.S3Key, localPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download from S3")
	}

	resp.SHA256 = result.SHA256
	resp.LocalPath = result.LocalPath
	resp.DownloadSize = result.Size

	pkg, _ := m.repo.GetPackageByKey(req.Msg.S3Key)
	if pkg != nil {
		pkg.SHA256 = result.SHA256
		pkg.LocalPath = result.LocalPath
		pkg.SizeBytes = result.Size
		if err := m.repo.UpdatePackage(pkg); err != nil {
			return nil, errors.Wrap(err, "failed to update package")
		}
	}

	return fsm.NewResponse(resp), nil
}

// handleVerify checks the downloaded package: size limits, checksum
// pin, and that it is a readable package carrying a device
// declaration. A package that fails here must never be flashed.
func (m *Machine) handleVerify(ctx context.Context, req *fsm.Request[PackageRequest, PackageResponse]) (*fsm.Response[PackageResponse], error) {
	slog.Info("fsm_state_verify", "s3_key", req.Msg.S3Key)

	if err := m.checkRetries(ctx, req.Msg.S3Key); err != nil {
		return nil, fsm.Abort(err)
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.validator.ValidateEntrySize(resp.DownloadSize); err != nil {
		m.repo.UpdatePackageStatus(resp.PackageID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(err)
	}

	if req.Msg.ExpectedSHA256 != "" && req.Msg.ExpectedSHA256 != resp.SHA256 {
		err := fmt.Errorf("package checksum mismatch: expected %s, got %s",
			req.Msg.ExpectedSHA256, resp.SHA256)
		m.repo.UpdatePackageStatus(resp.PackageID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(err)
	}

	src, err := source.OpenZipSource(resp.LocalPath, m.validator)
	if err != nil {
		m.repo.UpdatePackageStatus(resp.PackageID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(errors.Wrap(err, "package unreadable"))
	}
	defer src.Close()

	if _, err := src.ReadFile("android-info.txt"); err != nil {
		m.repo.UpdatePackageStatus(resp.PackageID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(errors.Wrap(err, "package carries no device declaration"))
	}

	slog.Info("package_verified", "s3_key", req.Msg.S3Key, "local_path", resp.LocalPath)
	return fsm.NewResponse(resp), nil
}

// handleComplete marks the package ready for flashing.
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[PackageRequest, PackageResponse]) (*fsm.Response[PackageResponse], error) {
	slog.Info("fsm_state_complete", "s3_key", req.Msg.S3Key)

	resp := req.W.Msg
	if resp == nil {
		resp = &PackageResponse{}
	}

	if err := m.repo.UpdatePackageStatus(resp.PackageID, db.StatusReady, ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}
	resp.Status = db.StatusReady

	slog.Info("fsm_complete", "s3_key", req.Msg.S3Key, "status", db.StatusReady)
	return fsm.NewResponse(resp), nil
}
