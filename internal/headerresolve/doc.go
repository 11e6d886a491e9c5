// Package headerresolve locates the true header inside a raw table that may
// carry banner rows, merged header cells or a two-row year+month header.
//
// An explicit header-row index always wins. Otherwise the resolver scans a
// bounded window of leading rows and picks the first row that is mostly
// non-numeric text, spans enough of the table width, and sits above rows
// that look like data. Merged or spanned header cells are expanded by
// forward-filling, a detected year row is combined with its month row
// ("2020" + "Jan" becomes "2020_Jan", localized month names normalized
// first), duplicates get positional suffixes and empty labels get
// placeholder names.
//
// When no plausible header exists within the window the resolver fails with
// the pipeline's header resolution error and the caller quarantines the
// file.
package headerresolve
