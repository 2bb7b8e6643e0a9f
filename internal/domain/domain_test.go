package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"integer", "45", "45", false},
		{"decimal with spaces", " 45.50 ", "45.5", false},
		{"empty", "", "", true},
		{"blank", "   ", "", true},
		{"not a number", "abc", "", true},
		{"zero", "0", "", true},
		{"negative", "-12.00", "", true},
		{"at maximum", "1000000", "", true},
		{"just under maximum", "999999.99", "999999.99", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("error %v does not wrap ErrInvalidAmount", err)
				}
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Input != tt.input {
					t.Errorf("error %v is not a ValidationError for %q", err, tt.input)
				}
				return
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ValidateAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestMonthKey(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2024-03-15", "2024-03"},
		{"2024-12", "2024-12"},
		{"2024", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MonthKey(tt.date); got != tt.want {
			t.Errorf("MonthKey(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestGroupByMonth(t *testing.T) {
	txs := []CategorizedTransaction{
		{RawTransaction: RawTransaction{Date: "2024-01-31", Description: "Checkers ", Amount: decimal.NewFromInt(100)}, Category: "groceries"},
		{RawTransaction: RawTransaction{Date: "2024-02-01", Description: "Uber", Amount: decimal.NewFromInt(50)}, Category: "transport"},
		{RawTransaction: RawTransaction{Date: "2024-01-02", Description: "Netflix", Amount: decimal.NewFromInt(199)}, Category: "subscriptions"},
	}

	got := GroupByMonth(txs)

	if len(got) != 2 {
		t.Fatalf("GroupByMonth() months = %d, want 2", len(got))
	}
	jan := got["2024-01"]
	if len(jan) != 2 {
		t.Fatalf("2024-01 entries = %d, want 2", len(jan))
	}
	if jan[0].Note != "Checkers" || jan[1].Note != "Netflix" {
		t.Errorf("2024-01 notes = %q, %q; want input order with trimmed notes", jan[0].Note, jan[1].Note)
	}
	if feb := got["2024-02"]; len(feb) != 1 || feb[0].Category != "transport" {
		t.Errorf("2024-02 entries = %+v", feb)
	}
}

func TestParseResult_AddError(t *testing.T) {
	var r ParseResult
	r.AddError("row %d: %s", 3, "bad date")
	if len(r.Errors) != 1 || r.Errors[0] != "row 3: bad date" {
		t.Errorf("Errors = %v", r.Errors)
	}
}
