package card

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a card name or free-text query into a comparison form:
// decomposed, stripped of combining marks, case folded, single spaced.
// Casers and transformers are stateful, so each call builds its own.
func NormalizeName(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, value)
	if err != nil {
		stripped = value
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// SameName reports whether two names are equal after normalization.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
