package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// CSVWriter archives documents into a directory
type CSVWriter struct {
	dir    string
	logger *slog.Logger
}

// NewCSVWriter creates a writer for dir
func NewCSVWriter(dir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{dir: dir, logger: logger.With(slog.String("component", "csv_writer"))}
}

// Dir returns the archive directory
func (w *CSVWriter) Dir() string {
	return w.dir
}

// WriteDocument stores doc under its filename and returns the final path.
// The file appears only once complete; on error or cancellation nothing is
// left behind.
func (w *CSVWriter) WriteDocument(ctx context.Context, doc *Document) (string, error) {
	fullPath := filepath.Join(w.dir, doc.Filename)
	if err := WriteFileAtomic(ctx, fullPath, doc.Bytes); err != nil {
		return "", err
	}

	w.logger.Info("Archived export",
		slog.String("full_path", fullPath),
		slog.Int("bytes", doc.Size()),
		slog.Int("rows", doc.Rows))
	return fullPath, nil
}

// WriteFileAtomic writes data to a temporary sibling of path and renames it
// into place
func WriteFileAtomic(ctx context.Context, path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}
