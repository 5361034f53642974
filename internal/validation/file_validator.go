// Package validation checks local files before the CLI hands them to the
// ingest and export layers.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"adaptiveclean/internal/ingest"
)

// ErrTooLarge is returned for inputs above the configured size limit.
var ErrTooLarge = errors.New("input file too large")

// FileValidator checks input and output paths for cleanctl.
type FileValidator struct {
	logger   *slog.Logger
	maxBytes int64
}

// NewFileValidator creates a validator. maxBytes <= 0 disables the size check.
func NewFileValidator(logger *slog.Logger, maxBytes int64) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger, maxBytes: maxBytes}
}

// ValidateInput checks that path is a readable regular file of a format the
// ingest layer can parse, and returns that format.
func (v *FileValidator) ValidateInput(path string) (ingest.Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		v.logger.Error("input_stat_failed", slog.String("file", path), slog.String("error", err.Error()))
		return "", fmt.Errorf("input %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("input %s is a directory, not a file", path)
	}
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return "", fmt.Errorf("input %s is a temporary office lock file", path)
	}

	format, err := ingest.DetectFormat(path)
	if err != nil {
		v.logger.Error("input_format_rejected", slog.String("file", path), slog.String("extension", filepath.Ext(path)))
		return "", err
	}
	if v.maxBytes > 0 && info.Size() > v.maxBytes {
		return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, path, info.Size(), v.maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("input %s is not readable: %w", path, err)
	}
	_ = f.Close()

	v.logger.Debug("input_validated",
		slog.String("file", path),
		slog.String("format", string(format)),
		slog.Int64("size", info.Size()))
	return format, nil
}

// ValidateOutput creates the parent directory of path if needed and checks
// that it accepts new files.
func (v *FileValidator) ValidateOutput(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("output %s is a directory", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("output_directory_failed", slog.String("directory", dir), slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".write_test_*")
	if err != nil {
		v.logger.Error("output_not_writable", slog.String("directory", dir), slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)

	v.logger.Debug("output_validated", slog.String("file", path))
	return nil
}
