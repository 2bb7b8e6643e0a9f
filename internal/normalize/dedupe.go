package normalize

import (
	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/shopspring/decimal"
)

const descriptionPrefixLen = 10

var amountTolerance = decimal.New(1, -2)

// IsDuplicate reports whether two transactions describe the same event: equal
// dates, amounts within 0.01, and identical descriptions or descriptions longer
// than ten characters sharing their first ten. Descriptions are compared
// case-sensitively.
func IsDuplicate(a, b domain.RawTransaction) bool {
	if a.Date != b.Date {
		return false
	}
	if a.Amount.Sub(b.Amount).Abs().GreaterThanOrEqual(amountTolerance) {
		return false
	}
	if a.Description == b.Description {
		return true
	}

	ra, rb := []rune(a.Description), []rune(b.Description)
	if len(ra) <= descriptionPrefixLen || len(rb) <= descriptionPrefixLen {
		return false
	}
	return string(ra[:descriptionPrefixLen]) == string(rb[:descriptionPrefixLen])
}

// Dedupe keeps the first occurrence of every transaction and drops later duplicates.
func Dedupe(txs []domain.RawTransaction) []domain.RawTransaction {
	out := make([]domain.RawTransaction, 0, len(txs))
	for _, tx := range txs {
		dup := false
		for _, kept := range out {
			if IsDuplicate(kept, tx) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, tx)
		}
	}
	return out
}
