package normalize

import (
	"strings"

	"github.com/dvloznov/finance-importer/internal/domain"
)

// Normalize canonicalizes dates and amounts, drops zero amounts and removes
// duplicates. Normalize(Normalize(x)) equals Normalize(x).
func Normalize(raw []domain.RawTransaction) []domain.RawTransaction {
	out := make([]domain.RawTransaction, 0, len(raw))
	for _, tx := range raw {
		tx.Date = ParseDate(tx.Date)
		tx.Amount = tx.Amount.Abs()
		tx.Description = strings.TrimSpace(tx.Description)
		tx.Reference = strings.TrimSpace(tx.Reference)
		if tx.Amount.IsZero() {
			continue
		}
		out = append(out, tx)
	}
	return Dedupe(out)
}
