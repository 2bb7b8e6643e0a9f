package bigquery

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-importer/internal/domain"
)

// ExpenseRow is one row of the month-keyed expenses table.
type ExpenseRow struct {
	EntryID string `bigquery:"entry_id"` // REQUIRED
	Month   string `bigquery:"month"`    // REQUIRED, YYYY-MM

	EntryDate civil.Date `bigquery:"entry_date"` // REQUIRED
	Amount    *big.Rat   `bigquery:"amount"`     // REQUIRED NUMERIC
	Category  string     `bigquery:"category"`   // REQUIRED

	Note bigquery.NullString `bigquery:"note"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

const expensesSchema = `
	CREATE TABLE IF NOT EXISTS %s (
		entry_id    STRING NOT NULL,
		month       STRING NOT NULL,
		entry_date  DATE NOT NULL,
		amount      NUMERIC NOT NULL,
		category    STRING NOT NULL,
		note        STRING,
		created_ts  TIMESTAMP NOT NULL
	)
	PARTITION BY DATE_TRUNC(entry_date, MONTH)
	CLUSTER BY category
`

// toExpenseRows converts store entries for one month into insertable rows.
// Entries whose date falls outside month are rejected rather than filed
// under the wrong key.
func toExpenseRows(month string, entries []domain.StoreEntry, now time.Time, newID func() string) ([]*ExpenseRow, error) {
	rows := make([]*ExpenseRow, 0, len(entries))
	for i, e := range entries {
		date, err := civil.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("toExpenseRows: entry %d: parse date %q: %w", i, e.Date, err)
		}
		if domain.MonthKey(e.Date) != month {
			return nil, fmt.Errorf("toExpenseRows: entry %d: date %s is not in month %s", i, e.Date, month)
		}

		row := &ExpenseRow{
			EntryID:   newID(),
			Month:     month,
			EntryDate: date,
			Amount:    e.Amount.Rat(),
			Category:  e.Category,
			CreatedTS: now,
		}
		if note := strings.TrimSpace(e.Note); note != "" {
			row.Note = bigquery.NullString{StringVal: note, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *ExpenseRow) toStoreEntry() (domain.StoreEntry, error) {
	amount := decimal.Zero
	if r.Amount != nil {
		d, err := decimal.NewFromString(r.Amount.FloatString(2))
		if err != nil {
			return domain.StoreEntry{}, fmt.Errorf("toStoreEntry: amount: %w", err)
		}
		amount = d
	}
	entry := domain.StoreEntry{
		Date:     r.EntryDate.String(),
		Amount:   amount,
		Category: r.Category,
	}
	if r.Note.Valid {
		entry.Note = r.Note.StringVal
	}
	return entry, nil
}
