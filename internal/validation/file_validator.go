package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"schemapipe/internal/ingest"
)

// FileValidator checks source files and pipeline directories before any
// reading or routing happens, so a bad inbox fails loudly at startup instead
// of file by file.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a file validator.
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateInputDirectory checks that an inbox directory exists and reports
// how many processable source files it holds. An empty inbox is not an
// error, there is simply nothing to do.
func (v *FileValidator) ValidateInputDirectory(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		v.logger.Error("input directory does not exist",
			slog.String("directory", dir))
		return fmt.Errorf("input directory %s does not exist", dir)
	}
	if err != nil {
		v.logger.Error("stat on input directory failed",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		v.logger.Error("input path is not a directory",
			slog.String("path", dir))
		return fmt.Errorf("%s is not a directory", dir)
	}

	count, err := v.CountSourceFiles(dir)
	if err != nil {
		return err
	}
	if count == 0 {
		v.logger.Info("input directory is empty",
			slog.String("directory", dir))
		return nil
	}
	v.logger.Info("input directory validated",
		slog.String("directory", dir),
		slog.Int("source_files", count))
	return nil
}

// ValidateOutputDirectory ensures an archive or quarantine directory exists
// and is writable, creating it when missing.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("creating output directory failed",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	// Probe writability with a throwaway file. Permissions alone do not
	// prove a network mount will accept writes.
	probe := filepath.Join(dir, ".write_test")
	file, err := os.Create(probe)
	if err != nil {
		v.logger.Error("output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(probe)

	v.logger.Debug("output directory validated",
		slog.String("directory", dir))
	return nil
}

// ValidateFile checks that a file exists and is readable.
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("file does not exist",
			slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		v.logger.Error("stat on file failed",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("path is a directory, not a file",
			slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("file is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateSourceFile checks that a file can enter the pipeline: it exists,
// is readable, is not an editor scratch file, and has a supported format.
// Unsupported extensions wrap ErrUnsupportedFormat.
func (v *FileValidator) ValidateSourceFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}

	base := filepath.Base(path)
	if isScratchName(base) {
		v.logger.Warn("skipping scratch file",
			slog.String("file", path))
		return fmt.Errorf("file %s is an editor scratch file", path)
	}

	if _, err := ingest.DetectFormat(path); err != nil {
		v.logger.Warn("unsupported source file",
			slog.String("file", path),
			slog.String("extension", filepath.Ext(path)))
		return err
	}
	return nil
}

// CountSourceFiles counts the processable source files directly under dir.
// Subdirectories, scratch files, and unsupported formats are not counted.
func (v *FileValidator) CountSourceFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		v.logger.Error("reading directory failed",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsSourceFile(entry.Name()) {
			count++
		}
	}

	v.logger.Debug("source files counted",
		slog.String("directory", dir),
		slog.Int("count", count))
	return count, nil
}

// IsSourceFile reports whether a file name looks like a processable source:
// a supported extension and not an editor scratch file. It checks the name
// only, not the filesystem.
func IsSourceFile(name string) bool {
	base := filepath.Base(name)
	if isScratchName(base) {
		return false
	}
	_, err := ingest.DetectFormat(base)
	return err == nil
}

// isScratchName recognizes Excel owner-lock files and hidden dot files.
func isScratchName(base string) bool {
	return strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".")
}
