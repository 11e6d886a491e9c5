package validation

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "schemapipe/internal/errors"
)

func newTestFileValidator() *FileValidator {
	return NewFileValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	return path
}

func TestFileValidator_ValidateInputDirectory(t *testing.T) {
	tests := []struct {
		name          string
		setupFunc     func(t *testing.T) string
		wantErr       bool
		errorContains string
	}{
		{
			name: "directory with source files",
			setupFunc: func(t *testing.T) string {
				dir := t.TempDir()
				touch(t, dir, "orders.xlsx")
				return dir
			},
		},
		{
			name: "empty directory is fine",
			setupFunc: func(t *testing.T) string {
				return t.TempDir()
			},
		},
		{
			name: "non-existent directory",
			setupFunc: func(t *testing.T) string {
				return "/non/existent/path"
			},
			wantErr:       true,
			errorContains: "does not exist",
		},
		{
			name: "path is a file",
			setupFunc: func(t *testing.T) string {
				dir := t.TempDir()
				return touch(t, dir, "orders.csv")
			},
			wantErr:       true,
			errorContains: "not a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestFileValidator()
			dir := tt.setupFunc(t)

			err := v.ValidateInputDirectory(dir)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	t.Run("existing directory", func(t *testing.T) {
		v := newTestFileValidator()
		assert.NoError(t, v.ValidateOutputDirectory(t.TempDir()))
	})

	t.Run("nested directory is created", func(t *testing.T) {
		v := newTestFileValidator()
		dir := filepath.Join(t.TempDir(), "archive", "acme")

		require.NoError(t, v.ValidateOutputDirectory(dir))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("write probe is cleaned up", func(t *testing.T) {
		v := newTestFileValidator()
		dir := t.TempDir()

		require.NoError(t, v.ValidateOutputDirectory(dir))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestFileValidator_ValidateSourceFile(t *testing.T) {
	tests := []struct {
		name          string
		setupFunc     func(t *testing.T) string
		wantErr       bool
		errorContains string
	}{
		{
			name: "workbook",
			setupFunc: func(t *testing.T) string {
				return touch(t, t.TempDir(), "orders.xlsx")
			},
		},
		{
			name: "delimited file",
			setupFunc: func(t *testing.T) string {
				return touch(t, t.TempDir(), "orders.csv")
			},
		},
		{
			name: "tab separated file",
			setupFunc: func(t *testing.T) string {
				return touch(t, t.TempDir(), "orders.tsv")
			},
		},
		{
			name: "excel owner lock file",
			setupFunc: func(t *testing.T) string {
				return touch(t, t.TempDir(), "~$orders.xlsx")
			},
			wantErr:       true,
			errorContains: "scratch",
		},
		{
			name: "hidden file",
			setupFunc: func(t *testing.T) string {
				return touch(t, t.TempDir(), ".orders.xlsx")
			},
			wantErr:       true,
			errorContains: "scratch",
		},
		{
			name: "non-existent file",
			setupFunc: func(t *testing.T) string {
				return "/non/existent/orders.xlsx"
			},
			wantErr:       true,
			errorContains: "does not exist",
		},
		{
			name: "directory",
			setupFunc: func(t *testing.T) string {
				return t.TempDir()
			},
			wantErr:       true,
			errorContains: "directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestFileValidator()
			path := tt.setupFunc(t)

			err := v.ValidateSourceFile(path)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileValidator_ValidateSourceFileUnsupportedFormat(t *testing.T) {
	v := newTestFileValidator()
	path := touch(t, t.TempDir(), "notes.txt")

	err := v.ValidateSourceFile(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrUnsupportedFormat)
}

func TestFileValidator_CountSourceFiles(t *testing.T) {
	v := newTestFileValidator()
	dir := t.TempDir()
	touch(t, dir, "jan.xlsx")
	touch(t, dir, "feb.csv")
	touch(t, dir, "~$jan.xlsx")
	touch(t, dir, "readme.txt")
	touch(t, dir, ".hidden.csv")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "done"), 0755))

	count, err := v.CountSourceFiles(dir)

	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIsSourceFile(t *testing.T) {
	assert.True(t, IsSourceFile("orders.xlsx"))
	assert.True(t, IsSourceFile("orders.XLSX"))
	assert.True(t, IsSourceFile("/inbox/acme/orders.csv"))
	assert.False(t, IsSourceFile("~$orders.xlsx"))
	assert.False(t, IsSourceFile(".orders.csv"))
	assert.False(t, IsSourceFile("orders.pdf"))
	assert.False(t, IsSourceFile("orders"))
}
