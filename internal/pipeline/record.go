package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/normalize"
)

// Field names accepted from delegate output, in lookup order.
var (
	amountFields      = []string{"amount", "value", "debit", "amt"}
	descriptionFields = []string{"description", "desc", "details", "narrative", "merchant", "payee", "name"}
	dateFields        = []string{"date", "transaction_date", "posting_date", "value_date"}
	referenceFields   = []string{"reference", "ref"}
)

// ExternalRecord is one loosely-typed transaction object returned by the
// extraction delegate.
type ExternalRecord map[string]interface{}

// ToRawTransaction validates the record and converts it. Records without a
// description or a positive amount are rejected.
func (r ExternalRecord) ToRawTransaction() (domain.RawTransaction, error) {
	desc := strings.TrimSpace(r.getStringField(descriptionFields...))
	if desc == "" {
		return domain.RawTransaction{}, fmt.Errorf("ToRawTransaction: missing description")
	}

	amount := r.getAmountField(amountFields...)
	if !amount.IsPositive() {
		return domain.RawTransaction{}, fmt.Errorf("ToRawTransaction: %q: amount must be positive", desc)
	}

	return domain.RawTransaction{
		Date:        normalize.ParseDate(r.getStringField(dateFields...)),
		Description: desc,
		Amount:      amount,
		Reference:   strings.TrimSpace(r.getStringField(referenceFields...)),
	}, nil
}

// getStringField returns the first present key rendered as a string.
func (r ExternalRecord) getStringField(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return val
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return fmt.Sprint(val)
		}
	}
	return ""
}

// getAmountField returns the magnitude of the first present amount key.
// Unparseable values yield zero.
func (r ExternalRecord) getAmountField(keys ...string) decimal.Decimal {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return decimal.NewFromFloat(val).Abs()
		case int:
			return decimal.NewFromInt(int64(val)).Abs()
		case string:
			d, err := normalize.ParseAmount(val)
			if err != nil {
				return decimal.Zero
			}
			return d
		default:
			return decimal.Zero
		}
	}
	return decimal.Zero
}
