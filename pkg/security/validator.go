// Package security validates factory package contents before they are
// extracted or flashed.
package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Validator enforces size and path limits on package entries.
type Validator struct {
	maxEntrySize        int64
	maxTotalSize        int64
	maxCompressionRatio float64

	mu               sync.Mutex
	currentTotalSize int64
}

// NewValidator creates a package validator.
func NewValidator(maxEntrySize, maxTotalSize int64, maxCompressionRatio float64) *Validator {
	slog.Info("package_validator_init",
		"max_entry_size_mb", maxEntrySize/1024/1024,
		"max_total_size_mb", maxTotalSize/1024/1024,
		"max_compression_ratio", maxCompressionRatio)

	return &Validator{
		maxEntrySize:        maxEntrySize,
		maxTotalSize:        maxTotalSize,
		maxCompressionRatio: maxCompressionRatio,
	}
}

// ValidatePath checks for path traversal in a package entry name.
func (v *Validator) ValidatePath(entryPath string) error {
	if filepath.IsAbs(entryPath) {
		slog.Error("package_path_validation_failed", "path", entryPath, "reason", "absolute_path")
		return fmt.Errorf("security: absolute path not allowed: %s", entryPath)
	}

	clean := filepath.Clean(entryPath)
	if strings.HasPrefix(clean, "..") {
		slog.Error("package_path_validation_failed", "path", entryPath, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", entryPath)
	}

	return nil
}

// ValidateEntry checks one package entry's name, declared sizes, and
// compression ratio, and tracks the running extraction total.
func (v *Validator) ValidateEntry(entryPath string, compressedSize, uncompressedSize int64) error {
	if err := v.ValidatePath(entryPath); err != nil {
		return err
	}
	if err := v.ValidateEntrySize(uncompressedSize); err != nil {
		return err
	}
	if compressedSize > 0 && uncompressedSize > 0 {
		if err := v.ValidateCompressionRatio(compressedSize, uncompressedSize); err != nil {
			return err
		}
	}
	return v.AddExtractedSize(uncompressedSize)
}

// ValidateEntrySize checks if an entry exceeds the per-entry limit.
func (v *Validator) ValidateEntrySize(size int64) error {
	if size > v.maxEntrySize {
		slog.Error("package_entry_size_exceeded",
			"entry_size_mb", size/1024/1024,
			"max_entry_size_mb", v.maxEntrySize/1024/1024)
		return fmt.Errorf("security: entry size %d exceeds max %d", size, v.maxEntrySize)
	}
	return nil
}

// AddExtractedSize tracks total extracted size against the limit.
func (v *Validator) AddExtractedSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.currentTotalSize += size

	if v.currentTotalSize > v.maxTotalSize {
		slog.Error("package_total_size_exceeded",
			"current_total_mb", v.currentTotalSize/1024/1024,
			"max_total_mb", v.maxTotalSize/1024/1024)
		return fmt.Errorf("security: total extracted size %d exceeds max %d",
			v.currentTotalSize, v.maxTotalSize)
	}

	return nil
}

// ValidateCompressionRatio checks for compression bombs.
func (v *Validator) ValidateCompressionRatio(compressedSize, uncompressedSize int64) error {
	if compressedSize == 0 {
		slog.Error("package_compression_validation_failed", "reason", "zero_compressed_size")
		return fmt.Errorf("security: compressed size cannot be zero")
	}

	ratio := float64(uncompressedSize) / float64(compressedSize)
	if ratio > v.maxCompressionRatio {
		slog.Error("package_compression_bomb_detected",
			"ratio", ratio,
			"max_ratio", v.maxCompressionRatio,
			"compressed_mb", compressedSize/1024/1024,
			"uncompressed_mb", uncompressedSize/1024/1024)
		return fmt.Errorf("security: compression ratio %.2f exceeds max %.2f (compressed: %d, uncompressed: %d)",
			ratio, v.maxCompressionRatio, compressedSize, uncompressedSize)
	}

	return nil
}

// Reset resets the total size counter.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentTotalSize = 0
}
