package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// decimalComma matches amounts whose last separator is a comma followed by
// exactly two digits, e.g. "450,00" or "1.234,56".
var decimalComma = regexp.MustCompile(`\d,\d{2}[^\d.,]*$`)

// ParseAmount converts a statement amount into a positive magnitude.
// Currency symbols, spaces, thousands separators, parentheses and the sign are
// discarded: "R1,234.56" → 1234.56, "-R500.00" → 500.
func ParseAmount(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if decimalComma.MatchString(trimmed) {
		i := strings.LastIndex(trimmed, ",")
		trimmed = strings.ReplaceAll(trimmed[:i], ".", "") + "." + trimmed[i+1:]
	}

	var b strings.Builder
	for _, r := range trimmed {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d.Abs(), nil
}
