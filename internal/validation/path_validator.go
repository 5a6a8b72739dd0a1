package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"straitpulse/internal/datasource"
	"straitpulse/internal/infrastructure"
)

// PathValidator checks data source inputs and export destinations before
// they are used, so misconfiguration surfaces with a readable message
type PathValidator struct {
	logger *slog.Logger
}

// NewPathValidator creates a new path validator
func NewPathValidator(logger *slog.Logger) *PathValidator {
	return &PathValidator{
		logger: infrastructure.WithComponent(logger, "path_validator"),
	}
}

// ValidateSource checks the path of a file-backed data source: a directory
// for csv, a workbook for xlsx. Other kinds have nothing to check.
func (v *PathValidator) ValidateSource(kind, path string) error {
	switch kind {
	case datasource.KindCSV:
		if err := v.ValidateInputDirectory(path); err != nil {
			return err
		}
		n, err := v.CountFiles(path, "*.csv")
		if err != nil {
			return err
		}
		if n == 0 {
			// an empty directory is allowed; files may arrive later
			v.logger.Warn("No price files found", slog.String("directory", path))
		}
		return nil
	case datasource.KindXLSX:
		return v.ValidateExcelFile(path)
	}
	return nil
}

// ValidateInputDirectory checks that dir exists and is a directory
func (v *PathValidator) ValidateInputDirectory(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		v.logger.Error("Input directory does not exist", slog.String("directory", dir))
		return fmt.Errorf("input directory %s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		v.logger.Error("Input path is not a directory", slog.String("path", dir))
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// ValidateFile checks that path is an existing, readable regular file
func (v *PathValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist", slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()
	return nil
}

// ValidateExcelFile checks that path is a readable .xlsx workbook and not an
// Office lock file
func (v *PathValidator) ValidateExcelFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".xlsx" {
		return fmt.Errorf("file %s is not an xlsx workbook (extension: %s)", path, ext)
	}
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return fmt.Errorf("file %s is a temporary Excel file", path)
	}
	return nil
}

// CountFiles counts regular files in dir matching pattern
func (v *PathValidator) CountFiles(dir, pattern string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}

	count := 0
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && !info.IsDir() {
			count++
		}
	}
	return count, nil
}

// ValidateOutputDirectory creates dir if needed and checks it is writable
func (v *PathValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return nil
}
