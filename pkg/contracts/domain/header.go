package domain

// HeaderSpec represents the resolved header of a RawTable: which source rows
// form the header, the final column labels, and the row offset where data
// begins. A HeaderSpec is derived from a RawTable and never mutated in place;
// re-derivation produces a new value.
type HeaderSpec struct {
	// HeaderRows lists the zero-based source row indices that form the
	// header, in order. One entry for a plain header, two for a combined
	// year+month header.
	HeaderRows []int `json:"header_rows"`

	// Labels holds the final column labels after merged-cell expansion,
	// multi-row combination, duplicate disambiguation and placeholder
	// assignment. Always non-empty strings.
	Labels []string `json:"labels"`

	// DataStart is the zero-based index of the first data row.
	DataStart int `json:"data_start"`
}

// Width returns the number of resolved columns.
func (h *HeaderSpec) Width() int {
	return len(h.Labels)
}

// IsMultiRow reports whether the header was combined from more than one
// source row.
func (h *HeaderSpec) IsMultiRow() bool {
	return len(h.HeaderRows) > 1
}
