// Package mapper assigns canonical field names to raw header labels.
//
// Mapping runs in three stages. Template replay reuses a saved mapping when
// enough of the template's headers match the current ones. Exact synonym
// lookup matches normalized headers against the contract and the layered
// synonym tables, user-learned spellings taking precedence over shared
// ones. The similarity fallback scores whatever is left with normalized
// edit distance and assigns the best field at or above the configured
// threshold.
//
// No stage assigns two headers to the same canonical field. A second
// candidate for a claimed field is declined and recorded as a warning so a
// reviewer can resolve it, never silently duplicated.
package mapper
