package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when an expense amount fails validation.
var ErrInvalidAmount = errors.New("invalid amount")

// ValidationError describes a rejected expense amount.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("amount %q: %s", e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidAmount }

// ValidateAmount checks a user-entered expense amount: it must be numeric and
// inside (0, MaxPlausibleAmount).
func ValidateAmount(input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return decimal.Zero, &ValidationError{Input: input, Reason: "amount is required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Input: input, Reason: "not a number"}
	}
	if !d.IsPositive() {
		return decimal.Zero, &ValidationError{Input: input, Reason: "must be greater than zero"}
	}
	if d.GreaterThanOrEqual(MaxPlausibleAmount) {
		return decimal.Zero, &ValidationError{Input: input, Reason: "exceeds maximum"}
	}
	return d, nil
}
