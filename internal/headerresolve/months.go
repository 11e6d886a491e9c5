package headerresolve

import (
	"strconv"
	"strings"
)

// Year tokens outside this range are treated as ordinary numbers.
const (
	minHeaderYear = 1900
	maxHeaderYear = 2100
)

// monthNames maps full month names, in the locales provider exports have
// actually used, to a normalized three letter form. Lookups are lowercase.
var monthNames = map[string]string{
	// Finnish
	"tammikuu":  "jan",
	"helmikuu":  "feb",
	"maaliskuu": "mar",
	"huhtikuu":  "apr",
	"toukokuu":  "may",
	"kesäkuu":   "jun",
	"heinäkuu":  "jul",
	"elokuu":    "aug",
	"syyskuu":   "sep",
	"lokakuu":   "oct",
	"marraskuu": "nov",
	"joulukuu":  "dec",
	"januaari":  "jan",

	// English
	"january":   "jan",
	"february":  "feb",
	"march":     "mar",
	"april":     "apr",
	"may":       "may",
	"june":      "jun",
	"july":      "jul",
	"august":    "aug",
	"september": "sep",
	"october":   "oct",
	"november":  "nov",
	"december":  "dec",

	// Swedish
	"januari":  "jan",
	"februari": "feb",
	"mars":     "mar",
	"maj":      "may",
	"juni":     "jun",
	"juli":     "jul",
	"augusti":  "aug",
	"oktober":  "oct",

	// German
	"maerz":    "mar",
	"märz":     "mar",
	"mai":      "may",
	"dezember": "dec",
}

var monthAbbrevs = []string{
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
}

// monthDisplay reports whether token names a month and returns the form the
// combined label should use. Full names from the locale table normalize to
// their three letter form; anything merely containing an English
// abbreviation ("Jan", "Jan-20") is kept verbatim.
func monthDisplay(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	lower := strings.ToLower(token)
	if normalized, ok := monthNames[lower]; ok {
		return normalized, true
	}
	for _, abbr := range monthAbbrevs {
		if strings.Contains(lower, abbr) {
			return token, true
		}
	}
	return "", false
}

// monthLikeRow reports whether the row reads as a month header, meaning at
// least two month cells making up the majority of its non-empty cells.
func monthLikeRow(row []string) bool {
	var nonEmpty, months int
	for _, cell := range row {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		nonEmpty++
		if _, ok := monthDisplay(cell); ok {
			months++
		}
	}
	return months >= 2 && months*2 > nonEmpty
}

// hasYearToken reports whether any cell in the row is a bare year.
func hasYearToken(row []string) bool {
	for _, cell := range row {
		if isYearToken(cell) {
			return true
		}
	}
	return false
}

func isYearToken(cell string) bool {
	year, err := strconv.Atoi(strings.TrimSpace(cell))
	if err != nil {
		return false
	}
	return year >= minHeaderYear && year <= maxHeaderYear
}
