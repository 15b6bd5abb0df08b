package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Validator enforces attachment size limits and validates user-supplied
// storage paths
type Validator struct {
	maxImageSize int64
	maxEntrySize int64

	mu               sync.Mutex
	currentTotalSize int64
}

// NewValidator creates a new security validator. maxImageSize bounds one
// stored photo; maxEntrySize bounds all photos of one entry.
func NewValidator(maxImageSize, maxEntrySize int64) *Validator {
	slog.Info("security_validator_init",
		"max_image_size_kb", maxImageSize/1024,
		"max_entry_size_mb", maxEntrySize/1024/1024)

	return &Validator{
		maxImageSize: maxImageSize,
		maxEntrySize: maxEntrySize,
	}
}

// ValidatePath checks a relative storage path, such as an object key
// prefix, for path traversal
func (v *Validator) ValidatePath(p string) error {
	// Reject absolute paths
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		slog.Error("security_path_validation_failed", "path", p, "reason", "absolute_path")
		return fmt.Errorf("security: absolute path not allowed: %s", p)
	}

	clean := filepath.Clean(p)

	// Reject paths that escape the root
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		slog.Error("security_path_validation_failed", "path", p, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", p)
	}

	return nil
}

// ValidateFileName checks that name is a single file name with no directory part
func (v *Validator) ValidateFileName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		slog.Error("security_file_name_validation_failed", "name", name)
		return fmt.Errorf("security: invalid file name: %q", name)
	}
	return nil
}

// ValidateImageSize checks if one photo exceeds the max image size
func (v *Validator) ValidateImageSize(size int64) error {
	if size > v.maxImageSize {
		slog.Error("security_image_size_exceeded",
			"image_size_kb", size/1024,
			"max_image_size_kb", v.maxImageSize/1024)
		return fmt.Errorf("security: image size %d exceeds max %d", size, v.maxImageSize)
	}
	return nil
}

// AddAttachmentSize tracks the total attachment size of the entry being
// saved and checks it against the limit
func (v *Validator) AddAttachmentSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.currentTotalSize += size

	if v.currentTotalSize > v.maxEntrySize {
		slog.Error("security_entry_size_exceeded",
			"current_total_kb", v.currentTotalSize/1024,
			"max_total_kb", v.maxEntrySize/1024,
			"image_size_kb", size/1024)
		return fmt.Errorf("security: total attachment size %d exceeds max %d",
			v.currentTotalSize, v.maxEntrySize)
	}

	return nil
}

// Reset resets the total size counter
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentTotalSize = 0
}

// CurrentTotalSize returns the attachment bytes counted since the last Reset
func (v *Validator) CurrentTotalSize() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentTotalSize
}
