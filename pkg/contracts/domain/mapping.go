package domain

// MappingOrigin represents how a column mapping entry was produced.
type MappingOrigin string

const (
	// OriginSynonymExact marks a hit in the configured synonym table.
	OriginSynonymExact MappingOrigin = "synonym-exact"
	// OriginSimilarityFuzzy marks a string-similarity match above threshold.
	OriginSimilarityFuzzy MappingOrigin = "similarity-fuzzy"
	// OriginUserOverride marks an entry confirmed or changed by the user.
	OriginUserOverride MappingOrigin = "user-override"
)

// MappingEntry represents the mapping decision for one raw header. An empty
// Target means the header is unmapped and its column will be dropped by the
// transform stage.
type MappingEntry struct {
	RawHeader  string        `json:"raw_header"`
	Target     string        `json:"target,omitempty"`
	Origin     MappingOrigin `json:"origin,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
}

// Mapped reports whether the entry assigns a canonical target.
func (e MappingEntry) Mapped() bool {
	return e.Target != ""
}

// MappingWarning represents a declined automated assignment, surfaced for
// manual resolution instead of silently duplicating a canonical target.
type MappingWarning struct {
	RawHeader  string  `json:"raw_header"`
	Candidate  string  `json:"candidate"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

// ColumnMapping represents the full mapping from raw header labels to
// canonical field names, one entry per resolved header in header order.
// Invariant: at most one raw header maps to a given canonical field.
type ColumnMapping struct {
	Entries  []MappingEntry   `json:"entries"`
	Warnings []MappingWarning `json:"warnings,omitempty"`
}

// TargetOf returns the canonical target for a raw header, or "".
func (m *ColumnMapping) TargetOf(rawHeader string) string {
	for _, e := range m.Entries {
		if e.RawHeader == rawHeader {
			return e.Target
		}
	}
	return ""
}

// EntryFor returns the entry for a raw header and whether it exists.
func (m *ColumnMapping) EntryFor(rawHeader string) (MappingEntry, bool) {
	for _, e := range m.Entries {
		if e.RawHeader == rawHeader {
			return e, true
		}
	}
	return MappingEntry{}, false
}

// MappedPairs returns raw header → target for all mapped entries, in entry
// order.
func (m *ColumnMapping) MappedPairs() map[string]string {
	pairs := make(map[string]string)
	for _, e := range m.Entries {
		if e.Mapped() {
			pairs[e.RawHeader] = e.Target
		}
	}
	return pairs
}

// UnmappedHeaders returns the raw headers without a canonical target, in
// entry order.
func (m *ColumnMapping) UnmappedHeaders() []string {
	var headers []string
	for _, e := range m.Entries {
		if !e.Mapped() {
			headers = append(headers, e.RawHeader)
		}
	}
	return headers
}

// TargetAssigned reports whether a canonical field is already claimed by an
// entry other than the named raw header.
func (m *ColumnMapping) TargetAssigned(target, exceptRawHeader string) bool {
	for _, e := range m.Entries {
		if e.Target == target && e.RawHeader != exceptRawHeader {
			return true
		}
	}
	return false
}

// ApplyOverride records a user decision for a raw header. The override
// replaces any existing entry for that header regardless of origin; when the
// new target is already claimed by another entry, that entry is unmapped so
// the one-header-per-field invariant holds. Passing an empty target unmaps
// the header. Unknown raw headers are appended.
func (m *ColumnMapping) ApplyOverride(rawHeader, target string) {
	if target != "" {
		for i := range m.Entries {
			if m.Entries[i].RawHeader != rawHeader && m.Entries[i].Target == target {
				m.Entries[i].Target = ""
				m.Entries[i].Origin = ""
				m.Entries[i].Confidence = 0
			}
		}
	}
	for i := range m.Entries {
		if m.Entries[i].RawHeader == rawHeader {
			m.Entries[i].Target = target
			m.Entries[i].Origin = OriginUserOverride
			m.Entries[i].Confidence = 1.0
			return
		}
	}
	m.Entries = append(m.Entries, MappingEntry{
		RawHeader:  rawHeader,
		Target:     target,
		Origin:     OriginUserOverride,
		Confidence: 1.0,
	})
}

// Overrides returns the entries produced by user decisions, used when a
// template save promotes learned synonyms.
func (m *ColumnMapping) Overrides() []MappingEntry {
	var entries []MappingEntry
	for _, e := range m.Entries {
		if e.Origin == OriginUserOverride && e.Mapped() {
			entries = append(entries, e)
		}
	}
	return entries
}

// Clone returns a deep copy of the mapping.
func (m *ColumnMapping) Clone() *ColumnMapping {
	clone := &ColumnMapping{
		Entries:  append([]MappingEntry(nil), m.Entries...),
		Warnings: append([]MappingWarning(nil), m.Warnings...),
	}
	return clone
}
