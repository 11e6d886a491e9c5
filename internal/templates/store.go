package templates

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"schemapipe/internal/config"
	apierrors "schemapipe/internal/errors"
	"schemapipe/pkg/contracts/domain"
)

// Store persists templates. Implementations report a missing key with the
// template-missing sentinel so callers can distinguish absence from
// failure.
type Store interface {
	Save(ctx context.Context, tpl *domain.Template) error
	Load(ctx context.Context, key string) (*domain.Template, error)
	List(ctx context.Context) ([]domain.TemplateInfo, error)
	Delete(ctx context.Context, key string) error
}

// NewStore builds the store selected by configuration: the file backend
// over dir, or postgres when configured with a DSN.
func NewStore(ctx context.Context, cfg config.TemplatesConfig, dir string, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(dir, logger)
	case "postgres":
		if cfg.DSN == "" {
			return nil, apierrors.NewConfigError("templates backend postgres requires a dsn", nil)
		}
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect templates database: %w", err)
		}
		store := NewPostgresStore(db, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, apierrors.NewConfigError(fmt.Sprintf("unknown templates backend %q", cfg.Backend), nil)
	}
}

func validateTemplate(v *validator.Validate, tpl *domain.Template) error {
	if tpl == nil {
		return fmt.Errorf("invalid template: nil")
	}
	if err := v.Struct(tpl); err != nil {
		return fmt.Errorf("invalid template %q: %w", tpl.Key, err)
	}
	return nil
}

// upgradeTemplate fills defaults that older template versions did not
// persist. The upgrade happens on load only; the stored file is left alone
// until the next save.
func upgradeTemplate(tpl *domain.Template, logger *slog.Logger) {
	if tpl.Version >= domain.TemplateVersion {
		return
	}
	if tpl.SourceType == "" {
		tpl.SourceType = "excel"
	}
	if tpl.Delimiter == "" {
		tpl.Delimiter = ","
	}
	if tpl.Encoding == "" {
		tpl.Encoding = "utf-8"
	}
	if tpl.Output.Format == "" {
		tpl.Output.Format = "csv"
	}
	logger.Debug("template upgraded",
		slog.String("key", tpl.Key),
		slog.Int("from_version", tpl.Version),
		slog.Int("to_version", domain.TemplateVersion))
	tpl.Version = domain.TemplateVersion
}

// sanitizeKey keeps template keys filesystem-safe.
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".template-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
