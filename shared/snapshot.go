package shared

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultDataDir is the relative path used when FEWS_DATA_DIR is not set.
const DefaultDataDir = "data"

// WriteSnapshot writes a file into dir through a temp file and a rename, so
// readers never observe a partially written snapshot. It returns the absolute
// path of the written file.
func WriteSnapshot(dir, fileName string, write func(io.Writer) error) (string, error) {
	if fileName == "" {
		return "", errors.New("snapshot file name is required")
	}
	if dir == "" {
		dir = DefaultDataDir
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}

	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory %q: %w", absDir, err)
	}

	targetPath := filepath.Join(absDir, fileName)

	tmpFile, err := os.CreateTemp(absDir, fileName+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	wrote := false
	defer func() {
		tmpFile.Close()
		if !wrote {
			os.Remove(tmpFile.Name())
		}
	}()

	if err := write(tmpFile); err != nil {
		return "", fmt.Errorf("failed to write snapshot contents: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return "", fmt.Errorf("failed to flush snapshot file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), targetPath); err != nil {
		return "", fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	wrote = true

	if err := os.Chmod(targetPath, 0o644); err != nil {
		return "", fmt.Errorf("failed to set permissions on %s: %w", targetPath, err)
	}

	return targetPath, nil
}
