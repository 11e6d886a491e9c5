package mapper

import (
	"strings"

	"schemapipe/internal/schema"
	"schemapipe/pkg/contracts/domain"
)

// indexTerm is one normalized spelling claimed by a canonical field.
type indexTerm struct {
	norm  string
	field string
}

// synonymIndex holds every known spelling for exact, containment and
// similarity lookups. The exact map resolves conflicting claims with
// user-learned entries overwriting shared ones; the term slices keep user
// terms ahead of shared terms so containment scans honor the same
// precedence.
type synonymIndex struct {
	exact     map[string]string
	userTerms []indexTerm
	baseTerms []indexTerm
}

func buildIndex(contract *domain.Contract, layers schema.Layers) *synonymIndex {
	idx := &synonymIndex{exact: make(map[string]string)}
	seen := make(map[indexTerm]bool)

	addShared := func(field, spelling string) {
		norm := Normalize(spelling)
		if norm == "" {
			return
		}
		term := indexTerm{norm: norm, field: field}
		if seen[term] {
			return
		}
		seen[term] = true
		idx.baseTerms = append(idx.baseTerms, term)
		if _, taken := idx.exact[norm]; !taken {
			idx.exact[norm] = field
		}
	}
	addUser := func(field, spelling string) {
		norm := Normalize(spelling)
		if norm == "" {
			return
		}
		idx.exact[norm] = field
		term := indexTerm{norm: norm, field: field}
		if seen[term] {
			return
		}
		seen[term] = true
		idx.userTerms = append(idx.userTerms, term)
	}

	for _, f := range contract.Fields {
		addShared(f.Name, f.Name)
		for _, s := range f.Synonyms {
			addShared(f.Name, s)
		}
		for _, s := range layers.Base[f.Name] {
			addShared(f.Name, s)
		}
	}
	for _, f := range contract.Fields {
		for _, s := range layers.User[f.Name] {
			addUser(f.Name, s)
		}
	}
	return idx
}

// lookupExact returns the field claiming the normalized spelling.
func (x *synonymIndex) lookupExact(norm string) (string, bool) {
	field, ok := x.exact[norm]
	return field, ok
}

// lookupContains returns the first field one of whose spellings appears as
// a whole-token sequence inside the normalized header, so "Total Sales
// Amount" finds the "amount" synonym but "Validated" does not find "date".
func (x *synonymIndex) lookupContains(norm string) (string, bool) {
	padded := " " + norm + " "
	for _, terms := range [][]indexTerm{x.userTerms, x.baseTerms} {
		for _, t := range terms {
			if strings.Contains(padded, " "+t.norm+" ") {
				return t.field, true
			}
		}
	}
	return "", false
}

// fieldScores returns each field's best similarity score against the
// normalized header.
func (x *synonymIndex) fieldScores(norm string) map[string]float64 {
	scores := make(map[string]float64)
	for _, terms := range [][]indexTerm{x.userTerms, x.baseTerms} {
		for _, t := range terms {
			if s := similarity(norm, t.norm); s > scores[t.field] {
				scores[t.field] = s
			}
		}
	}
	return scores
}
