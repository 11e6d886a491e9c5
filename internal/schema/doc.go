// Package schema loads the canonical contract and the layered synonym
// configuration the mapper works from.
//
// The contract (contract.yaml) declares the ordered canonical fields with
// their types and required flags. Synonyms come in two YAML layers: the
// shared base file and a user overlay holding learned header names. The
// overlay is additive and takes precedence on conflicting synonym→field
// claims. LearnedStore appends confirmed mappings to the overlay with an
// atomic read-merge-write so concurrent pipeline runs never lose entries.
package schema
