package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date format used for every transaction.
const DateLayout = "2006-01-02"

// MaxPlausibleAmount bounds amounts accepted as real transactions.
var MaxPlausibleAmount = decimal.NewFromInt(1_000_000)

// RawTransaction is one transaction recovered from an input before categorization.
// Amount is always a positive magnitude; every recovered transaction is treated
// as an expense.
type RawTransaction struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
}

// Tier identifies how a category was assigned.
type Tier string

const (
	TierRule     Tier = "rule"
	TierCache    Tier = "cache"
	TierDelegate Tier = "delegate"
	TierFallback Tier = "fallback"
)

// CategorizedTransaction is a RawTransaction with its assigned category.
type CategorizedTransaction struct {
	RawTransaction
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     Tier    `json:"source"`
}

// ParseResult carries recovered transactions together with diagnostic errors.
// Structural errors leave Transactions empty; row and chunk errors do not.
type ParseResult struct {
	Transactions []RawTransaction `json:"transactions"`
	Errors       []string         `json:"errors"`
}

// AddError appends a formatted diagnostic.
func (r *ParseResult) AddError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// StoreEntry is the shape handed to the month-keyed transaction store.
type StoreEntry struct {
	Date     string          `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Note     string          `json:"note,omitempty"`
}

// ToStoreEntry strips categorization metadata; the description becomes the note.
func (t CategorizedTransaction) ToStoreEntry() StoreEntry {
	return StoreEntry{
		Date:     t.Date,
		Amount:   t.Amount,
		Category: t.Category,
		Note:     strings.TrimSpace(t.Description),
	}
}

// MonthKey returns the "YYYY-MM" identifier of a canonical date.
func MonthKey(date string) string {
	if len(date) < 7 {
		return ""
	}
	return date[:7]
}

// GroupByMonth splits entries by month identifier, preserving order within a month.
func GroupByMonth(txs []CategorizedTransaction) map[string][]StoreEntry {
	out := make(map[string][]StoreEntry)
	for _, tx := range txs {
		key := MonthKey(tx.Date)
		out[key] = append(out[key], tx.ToStoreEntry())
	}
	return out
}
