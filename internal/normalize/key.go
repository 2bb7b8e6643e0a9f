package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Key returns the cache key for a description: case-folded,
// punctuation-stripped and whitespace-collapsed.
func Key(description string) string {
	folded := cases.Fold().String(description)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
