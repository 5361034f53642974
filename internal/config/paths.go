package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains the directories the service writes to
type Paths struct {
	DataDir string
	LogsDir string
}

// Paths resolves the writable directories implied by the configuration.
// DataDir is only set for file-backed storage.
func (c *Config) Paths() Paths {
	var p Paths
	if c.Storage.Kind == "sqlite" && isFileDSN(c.Storage.DSN) {
		p.DataDir = filepath.Dir(strings.TrimPrefix(c.Storage.DSN, "file:"))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		p.LogsDir = filepath.Dir(c.Logging.FilePath)
	}
	return p
}

// EnsureDirectories creates all required directories if they don't exist
func (p Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.LogsDir} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LogPathResolution logs the resolved directories
func (p Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Info("path_resolution",
		slog.Group("directories",
			slog.String("data", p.DataDir),
			slog.String("logs", p.LogsDir),
		))
}

func isFileDSN(dsn string) bool {
	if dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return false
	}
	return true
}

// FileExists reports whether path names an existing file
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
