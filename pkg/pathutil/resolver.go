// Package pathutil provides centralized path management for exported Beancount
// files.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MonthLayout is the layout of a year-month key.
const MonthLayout = "2006-01"

// PathResolver maps ledger months to files under the export root.
type PathResolver struct {
	exportRoot string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// ExportRoot is the root directory for exported Beancount files (e.g., ./beancount)
	ExportRoot string
}

// New creates a new PathResolver with the given configuration.
// An empty ExportRoot means the current directory.
func New(config Config) *PathResolver {
	root := config.ExportRoot
	if root == "" {
		root = "."
	}
	return &PathResolver{exportRoot: filepath.Clean(root)}
}

// ExportRoot returns the export root directory.
func (p *PathResolver) ExportRoot() string {
	return p.exportRoot
}

// YearDir returns the directory path for a year.
// Example: ./beancount/2024
func (p *PathResolver) YearDir(year string) string {
	return filepath.Join(p.exportRoot, year)
}

// MonthKey returns the year-month key of t in its own location.
func MonthKey(t time.Time) string {
	return t.Format(MonthLayout)
}

// MonthFilePath returns the file path for a month.
// yearMonth should be in YYYY-MM format.
// Example: ./beancount/2024/2024-01.beancount
func (p *PathResolver) MonthFilePath(yearMonth string) (string, error) {
	t, err := time.Parse(MonthLayout, yearMonth)
	if err != nil || t.Format(MonthLayout) != yearMonth {
		return "", fmt.Errorf("invalid year-month format: %s. Expected YYYY-MM", yearMonth)
	}

	filename := fmt.Sprintf("%s.beancount", yearMonth)
	return filepath.Join(p.YearDir(yearMonth[:4]), filename), nil
}

// Rel returns path relative to the export root, or path unchanged when it
// lies outside of it.
func (p *PathResolver) Rel(path string) string {
	rel, err := filepath.Rel(p.exportRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// EnsureParentDir ensures the parent directory of a file exists.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
