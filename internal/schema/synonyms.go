package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"schemapipe/pkg/contracts/domain"
)

// SynonymTable maps canonical field names to the raw header spellings that
// should resolve to them.
type SynonymTable map[string][]string

// Layers holds the two synonym configuration layers. Base is the shared
// file, User the learned overlay. The overlay wins when both claim the same
// header spelling for different fields.
type Layers struct {
	Base SynonymTable
	User SynonymTable
}

// synonymsFile is the on-disk YAML shape shared by both layers.
type synonymsFile struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

// LoadLayers reads both synonym files. Missing files yield empty layers;
// malformed files are errors.
func LoadLayers(basePath, userPath string) (Layers, error) {
	base, err := readSynonymsFile(basePath)
	if err != nil {
		return Layers{}, err
	}
	user, err := readSynonymsFile(userPath)
	if err != nil {
		return Layers{}, err
	}
	return Layers{Base: base, User: user}, nil
}

func readSynonymsFile(path string) (SynonymTable, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return SynonymTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read synonyms %s: %w", path, err)
	}

	var file synonymsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse synonyms %s: %w", path, err)
	}

	table := make(SynonymTable, len(file.Synonyms))
	for field, values := range file.Synonyms {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				table[field] = append(table[field], v)
			}
		}
	}
	return table, nil
}

// Merged combines both layers into one table. Base entries keep their order;
// overlay entries are appended with case-insensitive dedupe, so a learned
// spelling never shadows itself with a different casing.
func (l Layers) Merged() SynonymTable {
	merged := make(SynonymTable, len(l.Base)+len(l.User))
	for field, values := range l.Base {
		merged[field] = append([]string(nil), values...)
	}
	mergeInto(merged, l.User)
	return merged
}

// WithContract layers contract-declared synonyms underneath both files,
// returning the full lookup table the mapper uses. Field-name identity
// itself is handled by the mapper, not listed here.
func (l Layers) WithContract(contract SynonymTable) SynonymTable {
	merged := make(SynonymTable, len(contract)+len(l.Base)+len(l.User))
	for field, values := range contract {
		merged[field] = append([]string(nil), values...)
	}
	mergeInto(merged, l.Base)
	mergeInto(merged, l.User)
	return merged
}

// mergeInto appends unseen values from src, comparing case-insensitively.
func mergeInto(dst SynonymTable, src SynonymTable) {
	for field, values := range src {
		seen := make(map[string]bool, len(dst[field]))
		for _, v := range dst[field] {
			seen[strings.ToLower(v)] = true
		}
		for _, v := range values {
			key := strings.ToLower(v)
			if !seen[key] {
				dst[field] = append(dst[field], v)
				seen[key] = true
			}
		}
	}
}

// FromContract extracts the contract's declared synonyms as a SynonymTable.
func FromContract(c *domain.Contract) SynonymTable {
	table := make(SynonymTable, len(c.Fields))
	for _, f := range c.Fields {
		if len(f.Synonyms) > 0 {
			table[f.Name] = append([]string(nil), f.Synonyms...)
		}
	}
	return table
}
