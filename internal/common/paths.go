package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunDirectory creates a timestamped directory under base for one run's
// output and returns its path.
func RunDirectory(base string) (string, error) {
	dir := filepath.Join(base, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	return dir, nil
}

// Subfolder creates (or verifies) a child directory under parent and
// returns its path.
func Subfolder(parent, name string) (string, error) {
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// RemoveFolder deletes a directory tree. Missing directories are not an
// error.
func RemoveFolder(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(path)
}
