package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBase is returned when a filename would resolve outside the report directory.
var ErrOutsideBase = errors.New("path escapes report directory")

// ReportDir persists exported risk reports under a base directory.
type ReportDir struct {
	base string
}

// NewReportDir ensures base exists and returns a handle. An empty base means "./exports".
func NewReportDir(base string) (*ReportDir, error) {
	if base == "" {
		base = "./exports"
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve report directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &ReportDir{base: abs}, nil
}

// Save writes data to filename and returns the absolute path written. Existing
// files are replaced atomically.
func (d *ReportDir) Save(filename string, data []byte) (string, error) {
	path, err := d.resolve(filename)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(d.base, ".report-*")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move report into place: %w", err)
	}
	return path, nil
}

func (d *ReportDir) resolve(filename string) (string, error) {
	if filename == "" || filepath.IsAbs(filename) {
		return "", fmt.Errorf("%q: %w", filename, ErrOutsideBase)
	}
	path := filepath.Join(d.base, filename)
	if filepath.Dir(path) != d.base || strings.HasPrefix(filepath.Base(path), ".") {
		return "", fmt.Errorf("%q: %w", filename, ErrOutsideBase)
	}
	return path, nil
}
