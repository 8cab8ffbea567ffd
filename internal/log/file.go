package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OpenFile opens path for appending, rotating it first when it is older than
// rotationDays. Rotated copies older than rotationDays are removed.
func OpenFile(path string, rotationDays int) (*os.File, error) {
	if rotationDays <= 0 {
		rotationDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rotateIfNeeded(path, rotationDays, time.Now())

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func rotateIfNeeded(path string, rotationDays int, now time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		// nothing to rotate yet
		return
	}

	cutoff := now.AddDate(0, 0, -rotationDays)
	if !info.ModTime().Before(cutoff) {
		return
	}

	rotated := path + "." + info.ModTime().Format("20060102-150405")
	if err := os.Rename(path, rotated); err != nil {
		return
	}
	cleanupOld(path, cutoff)
}

// cleanupOld removes rotated copies of path last modified before cutoff
func cleanupOld(path string, cutoff time.Time) {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
