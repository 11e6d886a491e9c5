package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains all the application paths
// This is the single source of truth for ALL file paths in the application
type Paths struct {
	Root      string
	ConfigDir string
	DataDir   string
	LogsDir   string

	// Pipeline directories under data/
	InputDir      string
	ArchiveDir    string
	QuarantineDir string
	OutputDir     string
	CacheDir      string

	// Template storage
	TemplatesDir string

	// Well-known config files
	ContractFile     string
	SynonymsFile     string
	UserSynonymsFile string

	// Audit trail
	AuditLogFile string
}

// PathsFrom builds the path layout rooted at the given directory.
// Directory structure:
//
//	<root>/
//	  ├── config/
//	  │   ├── contract.yaml
//	  │   ├── synonyms.yaml
//	  │   └── synonyms.user.yaml
//	  ├── data/
//	  │   ├── input/        (provider exports awaiting processing)
//	  │   ├── archive/      (source files that passed validation)
//	  │   ├── quarantine/   (failed files plus their error logs)
//	  │   ├── output/       (standardized output tables)
//	  │   ├── cache/        (temporary files)
//	  │   └── outcomes.jsonl
//	  ├── templates/        (saved mapping templates)
//	  └── logs/
func PathsFrom(root string) *Paths {
	configDir := filepath.Join(root, "config")
	dataDir := filepath.Join(root, "data")

	return &Paths{
		Root:      root,
		ConfigDir: configDir,
		DataDir:   dataDir,
		LogsDir:   filepath.Join(root, "logs"),

		InputDir:      filepath.Join(dataDir, "input"),
		ArchiveDir:    filepath.Join(dataDir, "archive"),
		QuarantineDir: filepath.Join(dataDir, "quarantine"),
		OutputDir:     filepath.Join(dataDir, "output"),
		CacheDir:      filepath.Join(dataDir, "cache"),

		TemplatesDir: filepath.Join(root, "templates"),

		ContractFile:     filepath.Join(configDir, "contract.yaml"),
		SynonymsFile:     filepath.Join(configDir, "synonyms.yaml"),
		UserSynonymsFile: filepath.Join(configDir, "synonyms.user.yaml"),

		AuditLogFile: filepath.Join(dataDir, "outcomes.jsonl"),
	}
}

// GetPaths returns the application paths relative to the executable location.
// Paths are relative to the executable directory, never the current working
// directory, so the application behaves the same wherever it is launched from.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %v", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %v", err)
	}

	exeDir := filepath.Dir(exe)

	if logger := slog.Default(); logger != nil {
		logger.Debug("Resolved executable directory",
			slog.String("exe_path", exe),
			slog.String("exe_dir", exeDir))
	}

	return PathsFrom(exeDir), nil
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.ConfigDir,
		p.DataDir,
		p.InputDir,
		p.ArchiveDir,
		p.QuarantineDir,
		p.OutputDir,
		p.CacheDir,
		p.TemplatesDir,
		p.LogsDir,
	}

	logger := slog.Default()

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}

		if logger != nil {
			logger.Debug("Ensured directory exists",
				slog.String("directory", dir))
		}
	}

	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetInputPath returns the path for an input file
func (p *Paths) GetInputPath(filename string) string {
	return filepath.Join(p.InputDir, filename)
}

// GetArchivePath returns the archive destination for a source file
func (p *Paths) GetArchivePath(filename string) string {
	return filepath.Join(p.ArchiveDir, filename)
}

// GetQuarantinePath returns the quarantine destination for a source file
func (p *Paths) GetQuarantinePath(filename string) string {
	return filepath.Join(p.QuarantineDir, filename)
}

// GetErrorLogPath returns the quarantine error-log path for a source file,
// <name>.error.log beside the quarantined copy.
func (p *Paths) GetErrorLogPath(filename string) string {
	return filepath.Join(p.QuarantineDir, filename+".error.log")
}

// GetOutputPath returns the path for an output file
func (p *Paths) GetOutputPath(filename string) string {
	return filepath.Join(p.OutputDir, filename)
}

// GetCachePath returns the path for a cache file
func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetTemplatePath returns the on-disk path of a template record,
// <key>.df-template.json under the templates directory.
func (p *Paths) GetTemplatePath(key string) string {
	return filepath.Join(p.TemplatesDir, key+TemplateFileSuffix)
}

// TemplateKeyFromSource derives the template key for a source file from its
// stem: "acme_jan.xlsx" looks up "acme_jan".
func TemplateKeyFromSource(sourceFile string) string {
	base := filepath.Base(sourceFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LogPathResolution logs detailed path resolution information for debugging
func (p *Paths) LogPathResolution() {
	logger := slog.Default()
	if logger == nil {
		return
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("root", p.Root),
			slog.String("config", p.ConfigDir),
			slog.String("input", p.InputDir),
			slog.String("archive", p.ArchiveDir),
			slog.String("quarantine", p.QuarantineDir),
			slog.String("output", p.OutputDir),
			slog.String("templates", p.TemplatesDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("config_files",
			slog.String("contract", p.ContractFile),
			slog.String("synonyms", p.SynonymsFile),
			slog.String("user_synonyms", p.UserSynonymsFile),
		),
		slog.String("audit_log", p.AuditLogFile))
}

// ValidateRequiredFiles checks if critical files exist and returns detailed
// error information
func (p *Paths) ValidateRequiredFiles() error {
	requiredFiles := map[string]string{
		"Contract": p.ContractFile,
	}

	var missingFiles []string
	for name, path := range requiredFiles {
		if !FileExists(path) {
			missingFiles = append(missingFiles, fmt.Sprintf("%s (%s)", name, path))
		}
	}

	if len(missingFiles) > 0 {
		return fmt.Errorf("required files missing: %s", strings.Join(missingFiles, ", "))
	}

	return nil
}
