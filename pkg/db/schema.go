package db

// Schema defines the SQLite schema: fetched factory packages with
// their download lifecycle, and remembered network devices so a
// device connected once can be addressed by name later.
const Schema = `
CREATE TABLE IF NOT EXISTS packages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    s3_key TEXT NOT NULL UNIQUE,
    sha256 TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'downloading', 'ready', 'failed')),
    local_path TEXT,
    size_bytes INTEGER,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_packages_s3_key ON packages(s3_key);
CREATE INDEX IF NOT EXISTS idx_packages_status ON packages(status);

CREATE TABLE IF NOT EXISTS devices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    address TEXT NOT NULL UNIQUE,
    added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_seen TIMESTAMP
);
`

// Package status constants
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusReady       = "ready"
	StatusFailed      = "failed"
)

// Package is a fetched factory package record.
type Package struct {
	ID           int64
	S3Key        string
	SHA256       string
	Status       string
	LocalPath    string
	SizeBytes    int64
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}

// Device is a remembered network device.
type Device struct {
	ID       int64
	Address  string
	AddedAt  string
	LastSeen string
}
