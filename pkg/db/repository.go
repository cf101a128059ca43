// Package db persists fetched packages and remembered network devices
// in a local SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/fftools/fastflash/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for packages and devices.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the database at dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreatePackage inserts a new package record.
func (r *Repository) CreatePackage(pkg *Package) error {
	slog.Info("database_create_package", "s3_key", pkg.S3Key, "status", pkg.Status)

	query := `
		INSERT INTO packages (s3_key, sha256, status, local_path, size_bytes, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		pkg.S3Key, pkg.SHA256, pkg.Status, pkg.LocalPath, pkg.SizeBytes, pkg.ErrorMessage)
	if err != nil {
		return errors.Wrap(err, "failed to insert package")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	pkg.ID = id
	return nil
}

// GetPackageByKey retrieves a package by S3 key. Returns nil, nil when
// absent.
func (r *Repository) GetPackageByKey(s3Key string) (*Package, error) {
	query := `
		SELECT id, s3_key, sha256, status, local_path, size_bytes, error_message,
		       created_at, updated_at
		FROM packages WHERE s3_key = ?
	`
	var pkg Package
	var localPath, errorMessage sql.NullString
	var sizeBytes sql.NullInt64

	err := r.db.QueryRow(query, s3Key).Scan(
		&pkg.ID, &pkg.S3Key, &pkg.SHA256, &pkg.Status,
		&localPath, &sizeBytes, &errorMessage, &pkg.CreatedAt, &pkg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query package")
	}

	pkg.LocalPath = localPath.String
	pkg.SizeBytes = sizeBytes.Int64
	pkg.ErrorMessage = errorMessage.String
	return &pkg, nil
}

// UpdatePackage updates an existing package record.
func (r *Repository) UpdatePackage(pkg *Package) error {
	slog.Info("database_update_package", "package_id", pkg.ID, "s3_key", pkg.S3Key, "status", pkg.Status)

	query := `
		UPDATE packages
		SET sha256 = ?, status = ?, local_path = ?, size_bytes = ?, error_message = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		pkg.SHA256, pkg.Status, pkg.LocalPath, pkg.SizeBytes, pkg.ErrorMessage, pkg.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update package")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("package not found: id=%d", pkg.ID)
	}
	return nil
}

// UpdatePackageStatus updates only the status and error fields.
func (r *Repository) UpdatePackageStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "package_id", id, "status", status)

	query := `UPDATE packages SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, status, errorMessage, id); err != nil {
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// ListPackages retrieves all packages, newest first.
func (r *Repository) ListPackages() ([]*Package, error) {
	query := `
		SELECT id, s3_key, sha256, status, local_path, size_bytes, error_message,
		       created_at, updated_at
		FROM packages ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list packages")
	}
	defer rows.Close()

	var packages []*Package
	for rows.Next() {
		var pkg Package
		var localPath, errorMessage sql.NullString
		var sizeBytes sql.NullInt64

		err := rows.Scan(
			&pkg.ID, &pkg.S3Key, &pkg.SHA256, &pkg.Status,
			&localPath, &sizeBytes, &errorMessage, &pkg.CreatedAt, &pkg.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		pkg.LocalPath = localPath.String
		pkg.SizeBytes = sizeBytes.Int64
		pkg.ErrorMessage = errorMessage.String
		packages = append(packages, &pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return packages, nil
}

// DeletePackage deletes a package by ID.
func (r *Repository) DeletePackage(id int64) error {
	slog.Info("database_delete_package", "package_id", id)

	if _, err := r.db.Exec(`DELETE FROM packages WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete package")
	}
	return nil
}

// RememberDevice records a network device address, refreshing its
// last-seen time when it is already known.
func (r *Repository) RememberDevice(address string) error {
	slog.Info("database_remember_device", "address", address)

	query := `
		INSERT INTO devices (address, last_seen) VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT(address) DO UPDATE SET last_seen = CURRENT_TIMESTAMP
	`
	if _, err := r.db.Exec(query, address); err != nil {
		return errors.Wrap(err, "failed to remember device")
	}
	return nil
}

// ForgetDevice removes a remembered device.
func (r *Repository) ForgetDevice(address string) error {
	slog.Info("database_forget_device", "address", address)

	result, err := r.db.Exec(`DELETE FROM devices WHERE address = ?`, address)
	if err != nil {
		return errors.Wrap(err, "failed to forget device")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("device not remembered: %s", address)
	}
	return nil
}

// ListDevices retrieves all remembered devices, oldest first.
func (r *Repository) ListDevices() ([]*Device, error) {
	rows, err := r.db.Query(`SELECT id, address, added_at, COALESCE(last_seen, '') FROM devices ORDER BY added_at`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.Address, &d.AddedAt, &d.LastSeen); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		devices = append(devices, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return devices, nil
}
