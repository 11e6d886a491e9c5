package templates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	apierrors "schemapipe/internal/errors"
	"schemapipe/pkg/contracts/domain"
)

const createTemplatesTable = `
CREATE TABLE IF NOT EXISTS templates (
	key        TEXT PRIMARY KEY,
	provider   TEXT NOT NULL DEFAULT '',
	payload    JSONB NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps templates in a single table, the full template as a
// JSON payload beside the columns listings filter on.
type PostgresStore struct {
	db       *sqlx.DB
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPostgresStore wraps an open connection pool. The caller owns the pool.
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, validate: validator.New(), logger: logger}
}

// EnsureSchema creates the templates table when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTemplatesTable); err != nil {
		return fmt.Errorf("ensure templates table: %w", err)
	}
	return nil
}

// Save validates and upserts the template, stamping the current template
// version and time. The stamps are reflected back onto tpl.
func (s *PostgresStore) Save(ctx context.Context, tpl *domain.Template) error {
	if err := validateTemplate(s.validate, tpl); err != nil {
		return err
	}
	saved := tpl.Clone()
	saved.Version = domain.TemplateVersion
	saved.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("marshal template %q: %w", saved.Key, err)
	}
	query := `
		INSERT INTO templates (key, provider, payload, version, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			provider = EXCLUDED.provider,
			payload = EXCLUDED.payload,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query,
		saved.Key, saved.Provider, payload, saved.Version, saved.UpdatedAt); err != nil {
		return fmt.Errorf("save template %q: %w", saved.Key, err)
	}
	tpl.Version = saved.Version
	tpl.UpdatedAt = saved.UpdatedAt

	s.logger.Info("template saved",
		slog.String("key", saved.Key),
		slog.String("backend", "postgres"))
	return nil
}

// Load reads and upgrades one template.
func (s *PostgresStore) Load(ctx context.Context, key string) (*domain.Template, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM templates WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%q: %w", key, apierrors.ErrTemplateMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", key, err)
	}
	var tpl domain.Template
	if err := json.Unmarshal(payload, &tpl); err != nil {
		return nil, fmt.Errorf("parse template %q: %w", key, err)
	}
	upgradeTemplate(&tpl, s.logger)
	return &tpl, nil
}

// List returns metadata for every stored template, sorted by key.
func (s *PostgresStore) List(ctx context.Context) ([]domain.TemplateInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, provider, version, updated_at FROM templates ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var infos []domain.TemplateInfo
	for rows.Next() {
		var info domain.TemplateInfo
		if err := rows.Scan(&info.Key, &info.Provider, &info.Version, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return infos, nil
}

// Delete removes one template.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete template %q: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template %q: %w", key, err)
	}
	if affected == 0 {
		return fmt.Errorf("%q: %w", key, apierrors.ErrTemplateMissing)
	}
	s.logger.Info("template deleted", slog.String("key", key))
	return nil
}
