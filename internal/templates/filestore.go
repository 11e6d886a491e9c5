package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apierrors "schemapipe/internal/errors"
	"schemapipe/pkg/contracts/domain"
)

// fileSuffix marks template files so unrelated files in the directory are
// ignored.
const fileSuffix = ".df-template.json"

// FileStore keeps one JSON file per template under a directory.
type FileStore struct {
	dir      string
	validate *validator.Validate
	logger   *slog.Logger
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}
	return &FileStore{dir: dir, validate: validator.New(), logger: logger}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+fileSuffix)
}

// Save validates the template and writes it atomically, stamping the
// current template version and time. The stamps are reflected back onto
// tpl.
func (s *FileStore) Save(_ context.Context, tpl *domain.Template) error {
	if err := validateTemplate(s.validate, tpl); err != nil {
		return err
	}
	saved := tpl.Clone()
	saved.Version = domain.TemplateVersion
	saved.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal template %q: %w", saved.Key, err)
	}
	if err := writeAtomic(s.path(saved.Key), data); err != nil {
		return fmt.Errorf("write template %q: %w", saved.Key, err)
	}
	tpl.Version = saved.Version
	tpl.UpdatedAt = saved.UpdatedAt

	s.logger.Info("template saved",
		slog.String("key", saved.Key),
		slog.String("backend", "file"))
	return nil
}

// Load reads and upgrades one template.
func (s *FileStore) Load(_ context.Context, key string) (*domain.Template, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%q: %w", key, apierrors.ErrTemplateMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %q: %w", key, err)
	}
	var tpl domain.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("parse template %q: %w", key, err)
	}
	upgradeTemplate(&tpl, s.logger)
	return &tpl, nil
}

// List returns metadata for every readable template, sorted by key.
// Unreadable files are logged and skipped rather than failing the listing.
func (s *FileStore) List(ctx context.Context) ([]domain.TemplateInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	var infos []domain.TemplateInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), fileSuffix)
		tpl, err := s.Load(ctx, key)
		if err != nil {
			s.logger.Warn("skipping unreadable template",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		infos = append(infos, domain.TemplateInfo{
			Key:       tpl.Key,
			Provider:  tpl.Provider,
			Version:   tpl.Version,
			UpdatedAt: tpl.UpdatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Delete removes one template.
func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return fmt.Errorf("%q: %w", key, apierrors.ErrTemplateMissing)
	}
	if err != nil {
		return fmt.Errorf("delete template %q: %w", key, err)
	}
	s.logger.Info("template deleted", slog.String("key", key))
	return nil
}
