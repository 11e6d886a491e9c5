package services

import (
	"context"
	"fmt"
	"log/slog"

	"schemapipe/internal/schema"
	"schemapipe/internal/templates"
	"schemapipe/pkg/contracts/domain"
)

// TemplateService manages saved mapping templates. Saving a template also
// promotes its reviewed header overrides into the learned synonym layer,
// so a correction made once on the review screen applies to every future
// file with that header.
type TemplateService struct {
	store   templates.Store
	learned *schema.LearnedStore
	known   schema.SynonymTable
	logger  *slog.Logger
}

// NewTemplateService creates a template service. The known table is built
// from the contract and the loaded synonym layers; already-known spellings
// are skipped when overrides are promoted.
func NewTemplateService(store templates.Store, learned *schema.LearnedStore, contract *domain.Contract, layers schema.Layers, logger *slog.Logger) *TemplateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateService{
		store:   store,
		learned: learned,
		known:   layers.WithContract(schema.FromContract(contract)),
		logger:  logger.With(slog.String("service", "templates")),
	}
}

// Get loads a template by key.
func (s *TemplateService) Get(ctx context.Context, key string) (*domain.Template, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: template key is required", ErrInvalidInput)
	}
	return s.store.Load(ctx, key)
}

// List returns summaries of all saved templates.
func (s *TemplateService) List(ctx context.Context) ([]domain.TemplateInfo, error) {
	return s.store.List(ctx)
}

// Delete removes a template by key. Synonyms already learned from the
// template stay in place.
func (s *TemplateService) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: template key is required", ErrInvalidInput)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "template deleted", slog.String("key", key))
	return nil
}

// Save persists a template and promotes its user overrides into the
// learned synonym layer. It returns how many new synonyms were learned.
// A failure to persist synonyms does not undo the save; the template is
// the primary artifact and the override pairs are still inside it.
func (s *TemplateService) Save(ctx context.Context, tpl *domain.Template) (int, error) {
	if tpl == nil || tpl.Key == "" {
		return 0, fmt.Errorf("%w: template with a key is required", ErrInvalidInput)
	}
	if err := s.store.Save(ctx, tpl); err != nil {
		return 0, err
	}

	added, err := s.promoteOverrides(tpl)
	if err != nil {
		s.logger.WarnContext(ctx, "override promotion failed",
			slog.String("key", tpl.Key),
			slog.String("error", err.Error()))
		return 0, nil
	}
	s.logger.InfoContext(ctx, "template saved",
		slog.String("key", tpl.Key),
		slog.Int("version", tpl.Version),
		slog.Int("synonyms_learned", added))
	return added, nil
}

func (s *TemplateService) promoteOverrides(tpl *domain.Template) (int, error) {
	if s.learned == nil {
		return 0, nil
	}
	overrides := tpl.Mapping.Overrides()
	if len(overrides) == 0 {
		return 0, nil
	}
	pairs := make(map[string]string, len(overrides))
	for _, entry := range overrides {
		pairs[entry.RawHeader] = entry.Target
	}
	return s.learned.Learn(pairs, s.known)
}
