package fsm

// PackageRequest is the FSM input.
type PackageRequest struct {
	S3Key    string
	S3Bucket string
	// ExpectedSHA256 optionally pins the package checksum; empty skips
	// the comparison.
	ExpectedSHA256 string
}

// PackageResponse is the FSM output, accumulated across transitions.
type PackageResponse struct {
	// From CheckDB
	PackageID int64

	// From Download
	SHA256       string
	LocalPath    string
	DownloadSize int64

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckDB  = "check_db"
	StateDownload = "download"
	StateVerify   = "verify"
	StateComplete = "complete"
	StateFailed   = "failed"
)
