package gateways

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

// osFileSystem implements FileSystem on the local disk
type osFileSystem struct{}

// NewOSFileSystem creates a FileSystem backed by the os package
func NewOSFileSystem() gateways.FileSystem {
	return osFileSystem{}
}

func (osFileSystem) ReadFile(path string) ([]byte, error) {
	//nolint:gosec // G304: paths are scanner output files created by this process
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile creates parent directories as needed
func (osFileSystem) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (osFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFileSystem) IsDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func (osFileSystem) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

func (osFileSystem) TempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	return dir, nil
}

func (osFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
