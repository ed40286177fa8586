package beancount

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/pathutil"
)

// Repository defines the interface for Beancount file operations.
type Repository interface {
	// AppendTransactions appends transactions to a monthly file and returns
	// the file path.
	AppendTransactions(yearMonth string, txns []Transaction, comment ...string) (string, error)

	// ReadMonthFile reads the content of a monthly file
	ReadMonthFile(yearMonth string) (string, error)

	// MonthFilesInYear gets all monthly files in a year
	MonthFilesInYear(year string) ([]string, error)
}

// FileSystemRepository is a file system implementation of Repository.
type FileSystemRepository struct {
	pathResolver *pathutil.PathResolver
	now          func() time.Time
}

// NewFileSystemRepository creates a new FileSystemRepository.
func NewFileSystemRepository(pathResolver *pathutil.PathResolver) *FileSystemRepository {
	return &FileSystemRepository{
		pathResolver: pathResolver,
		now:          time.Now,
	}
}

// AppendTransactions appends transactions to a monthly file in one write.
// It creates the file with a header if it doesn't exist.
func (r *FileSystemRepository) AppendTransactions(yearMonth string, txns []Transaction, comment ...string) (string, error) {
	filePath, err := r.pathResolver.MonthFilePath(yearMonth)
	if err != nil {
		return "", fmt.Errorf("failed to get month file path: %w", err)
	}

	if err := r.ensureMonthFile(filePath, yearMonth); err != nil {
		return "", fmt.Errorf("failed to ensure month file: %w", err)
	}

	var sb strings.Builder
	if len(comment) > 0 && comment[0] != "" {
		fmt.Fprintf(&sb, "; %s\n", comment[0])
	}
	for _, txn := range txns {
		sb.WriteString(txn.Format())
		sb.WriteString("\n") // Add blank line after transaction
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open file for appending: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(sb.String()); err != nil {
		return "", fmt.Errorf("failed to write to file: %w", err)
	}

	return filePath, nil
}

// ReadMonthFile reads the content of a monthly file.
// Returns empty string if file doesn't exist.
func (r *FileSystemRepository) ReadMonthFile(yearMonth string) (string, error) {
	filePath, err := r.pathResolver.MonthFilePath(yearMonth)
	if err != nil {
		return "", fmt.Errorf("failed to get month file path: %w", err)
	}

	if !r.pathResolver.FileExists(filePath) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return string(data), nil
}

// MonthFilesInYear gets all monthly files in a year, sorted.
// Returns a slice of year-month strings (e.g., ["2024-01", "2024-02"]).
func (r *FileSystemRepository) MonthFilesInYear(year string) ([]string, error) {
	yearDir := r.pathResolver.YearDir(year)
	if !r.pathResolver.FileExists(yearDir) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(yearDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read year directory: %w", err)
	}

	var monthFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) == ".beancount" {
			monthFiles = append(monthFiles, strings.TrimSuffix(name, ".beancount"))
		}
	}
	sort.Strings(monthFiles)

	return monthFiles, nil
}

func (r *FileSystemRepository) ensureMonthFile(filePath, yearMonth string) error {
	if r.pathResolver.FileExists(filePath) {
		return nil
	}

	if err := r.pathResolver.EnsureParentDir(filePath); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	header := fmt.Sprintf("; Ledger export for %s\n; Generated at %s\n\n", yearMonth, r.now().Format(time.RFC3339))
	if err := os.WriteFile(filePath, []byte(header), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
