package mapper

import (
	"fmt"
	"log/slog"

	"schemapipe/internal/schema"
	"schemapipe/pkg/contracts/domain"
)

// Config tunes the mapping thresholds. Zero values take the pipeline
// defaults.
type Config struct {
	// SimilarityThreshold is the minimum normalized similarity score for
	// the fuzzy stage to assign a field.
	SimilarityThreshold float64

	// TemplateReplayThreshold is the minimum fraction of a template's
	// headers that must match the current headers for replay to apply.
	TemplateReplayThreshold float64
}

const (
	defaultSimilarityThreshold = 0.8
	defaultReplayThreshold     = 0.6
)

func (c Config) withDefaults() Config {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = defaultSimilarityThreshold
	}
	if c.TemplateReplayThreshold <= 0 {
		c.TemplateReplayThreshold = defaultReplayThreshold
	}
	return c
}

// Mapper assigns canonical fields to raw headers using the contract and the
// layered synonym configuration. Build one per contract and reuse it; Map
// is safe for concurrent use.
type Mapper struct {
	cfg    Config
	fields []string
	index  *synonymIndex
	logger *slog.Logger
}

// New builds a mapper over the contract and synonym layers. A nil logger
// falls back to slog.Default.
func New(contract *domain.Contract, layers schema.Layers, cfg Config, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		cfg:    cfg.withDefaults(),
		fields: contract.FieldNames(),
		index:  buildIndex(contract, layers),
		logger: logger,
	}
}

// Map produces the mapping for one header set. A non-nil template is tried
// first; headers it does not cover fall through to synonym lookup and then
// the similarity fallback. The result has one entry per header in header
// order.
func (m *Mapper) Map(headers []string, tpl *domain.Template) *domain.ColumnMapping {
	mapping := &domain.ColumnMapping{Entries: make([]domain.MappingEntry, len(headers))}
	for i, h := range headers {
		mapping.Entries[i] = domain.MappingEntry{RawHeader: h}
	}
	decided := make([]bool, len(headers))
	claimed := make(map[string]string, len(m.fields))

	if tpl != nil {
		m.replayTemplate(mapping, headers, tpl, decided, claimed)
	}
	m.applySynonyms(mapping, headers, decided, claimed)
	m.applySimilarity(mapping, headers, decided, claimed)

	m.logger.Debug("headers mapped",
		slog.Int("headers", len(headers)),
		slog.Int("mapped", len(mapping.MappedPairs())),
		slog.Int("warnings", len(mapping.Warnings)))
	return mapping
}

// replayTemplate copies saved decisions for headers whose normalized form
// matches a template entry, provided enough of the template's headers are
// present. A replayed decision keeps its saved target, origin and
// confidence, including explicit unmapped decisions.
func (m *Mapper) replayTemplate(mapping *domain.ColumnMapping, headers []string, tpl *domain.Template, decided []bool, claimed map[string]string) {
	saved := make(map[string]domain.MappingEntry, len(tpl.Mapping.Entries))
	for _, e := range tpl.Mapping.Entries {
		norm := Normalize(e.RawHeader)
		if norm == "" {
			continue
		}
		if _, dup := saved[norm]; !dup {
			saved[norm] = e
		}
	}
	if len(saved) == 0 {
		return
	}

	matched := 0
	for _, h := range headers {
		if _, ok := saved[Normalize(h)]; ok {
			matched++
		}
	}
	fraction := float64(matched) / float64(len(saved))
	if fraction < m.cfg.TemplateReplayThreshold {
		m.logger.Debug("template replay skipped",
			slog.String("template", tpl.Key),
			slog.Float64("matched_fraction", fraction))
		return
	}

	for i, h := range headers {
		entry, ok := saved[Normalize(h)]
		if !ok {
			continue
		}
		if entry.Mapped() && claimed[entry.Target] != "" {
			continue
		}
		mapping.Entries[i] = domain.MappingEntry{
			RawHeader:  h,
			Target:     entry.Target,
			Origin:     entry.Origin,
			Confidence: entry.Confidence,
		}
		decided[i] = true
		if entry.Mapped() {
			claimed[entry.Target] = h
		}
	}
	m.logger.Info("template mapping replayed",
		slog.String("template", tpl.Key),
		slog.Float64("matched_fraction", fraction))
}

func (m *Mapper) applySynonyms(mapping *domain.ColumnMapping, headers []string, decided []bool, claimed map[string]string) {
	for i, h := range headers {
		if decided[i] {
			continue
		}
		norm := Normalize(h)
		if norm == "" {
			continue
		}
		field, ok := m.index.lookupExact(norm)
		if !ok {
			field, ok = m.index.lookupContains(norm)
		}
		if !ok {
			continue
		}
		decided[i] = true
		if owner, taken := claimed[field]; taken {
			mapping.Warnings = append(mapping.Warnings, domain.MappingWarning{
				RawHeader:  h,
				Candidate:  field,
				Confidence: 1.0,
				Message:    fmt.Sprintf("%s is already mapped from %q", field, owner),
			})
			continue
		}
		mapping.Entries[i] = domain.MappingEntry{
			RawHeader:  h,
			Target:     field,
			Origin:     domain.OriginSynonymExact,
			Confidence: 1.0,
		}
		claimed[field] = h
	}
}

// applySimilarity maps the leftover headers by similarity score. On a
// collision the lower-confidence claim loses: a fuzzy claim held by an
// earlier header is evicted when a later header scores strictly higher,
// and the loser is left unmapped with a warning. Template and synonym
// claims are never evicted.
func (m *Mapper) applySimilarity(mapping *domain.ColumnMapping, headers []string, decided []bool, claimed map[string]string) {
	fuzzyAt := make(map[string]int, len(m.fields))
	for i, h := range headers {
		if decided[i] {
			continue
		}
		norm := Normalize(h)
		if norm == "" {
			continue
		}
		field, score, ok := m.selectField(m.index.fieldScores(norm), claimed)
		if !ok {
			continue
		}
		if owner, taken := claimed[field]; taken {
			prev, fuzzy := fuzzyAt[field]
			if !fuzzy || score <= mapping.Entries[prev].Confidence {
				mapping.Warnings = append(mapping.Warnings, domain.MappingWarning{
					RawHeader:  h,
					Candidate:  field,
					Confidence: score,
					Message:    fmt.Sprintf("%s is already mapped from %q", field, owner),
				})
				continue
			}
			mapping.Warnings = append(mapping.Warnings, domain.MappingWarning{
				RawHeader:  owner,
				Candidate:  field,
				Confidence: mapping.Entries[prev].Confidence,
				Message:    fmt.Sprintf("%s reassigned to %q with higher confidence", field, h),
			})
			mapping.Entries[prev] = domain.MappingEntry{RawHeader: owner}
		}
		mapping.Entries[i] = domain.MappingEntry{
			RawHeader:  h,
			Target:     field,
			Origin:     domain.OriginSimilarityFuzzy,
			Confidence: score,
		}
		claimed[field] = h
		fuzzyAt[field] = i
	}
}

// selectField picks the best-scoring field at or above the threshold. Ties
// prefer an unclaimed field, then contract order.
func (m *Mapper) selectField(scores map[string]float64, claimed map[string]string) (string, float64, bool) {
	const eps = 1e-9
	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, field := range m.fields {
		score, ok := scores[field]
		if !ok || score < m.cfg.SimilarityThreshold {
			continue
		}
		if !found {
			best, bestScore, found = field, score, true
			continue
		}
		switch {
		case score > bestScore+eps:
			best, bestScore = field, score
		case score >= bestScore-eps && claimed[best] != "" && claimed[field] == "":
			best, bestScore = field, score
		}
	}
	return best, bestScore, found
}
