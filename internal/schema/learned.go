package schema

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// LearnedStore persists confirmed header→field mappings into the user
// synonym overlay. Every Learn call re-reads the file, merges and writes a
// replacement via temp file + rename, so parallel pipeline runs (and other
// processes between calls) never lose each other's additions.
type LearnedStore struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewLearnedStore creates a store over the user synonym file. A nil logger
// falls back to slog.Default.
func NewLearnedStore(path string, logger *slog.Logger) *LearnedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LearnedStore{path: path, logger: logger}
}

// Path returns the overlay file location.
func (s *LearnedStore) Path() string {
	return s.path
}

// Learn records raw header → canonical field pairs that are not already
// known. known is the merged synonym view (contract + base + overlay) used
// to skip spellings any layer already covers. Returns how many entries were
// added; zero additions leave the file untouched.
func (s *LearnedStore) Learn(pairs map[string]string, known SynonymTable) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := readSynonymsFile(s.path)
	if err != nil {
		return 0, err
	}

	added := 0
	for rawHeader, field := range pairs {
		rawHeader = strings.TrimSpace(rawHeader)
		field = strings.TrimSpace(field)
		if rawHeader == "" || field == "" {
			continue
		}
		if containsFold(known[field], rawHeader) || containsFold(current[field], rawHeader) {
			continue
		}
		current[field] = append(current[field], rawHeader)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := s.write(current); err != nil {
		return 0, err
	}

	s.logger.Info("learned synonyms persisted",
		slog.String("path", s.path),
		slog.Int("added", added))
	return added, nil
}

func (s *LearnedStore) write(table SynonymTable) error {
	data, err := yaml.Marshal(synonymsFile{Synonyms: table})
	if err != nil {
		return fmt.Errorf("encode synonyms: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".synonyms-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp synonyms file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp synonyms file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp synonyms file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace synonyms file: %w", err)
	}
	return nil
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
