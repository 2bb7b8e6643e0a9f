package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLocateTransactions(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantCount  int
		wantDate   string
		wantAmount string
		wantDesc   string
	}{
		{
			name:       "single line with currency amount",
			text:       "15/01/2024 CHECKERS HYPER SANDTON R450.00",
			wantCount:  1,
			wantDate:   "2024-01-15",
			wantAmount: "450",
			wantDesc:   "CHECKERS HYPER SANDTON",
		},
		{
			name:       "year-first date with thousands amount",
			text:       "2024-02-03 Makro Woodmead 1,234.56",
			wantCount:  1,
			wantDate:   "2024-02-03",
			wantAmount: "1234.56",
			wantDesc:   "Makro Woodmead",
		},
		{
			name:       "textual month",
			text:       "3 Mar 2024 Engen Garage 650.00",
			wantCount:  1,
			wantDate:   "2024-03-03",
			wantAmount: "650",
			wantDesc:   "Engen Garage",
		},
		{
			name:       "amount on the next line",
			text:       "20/01/2024 Woolworths Food\n             R89.99",
			wantCount:  1,
			wantDate:   "2024-01-20",
			wantAmount: "89.99",
			wantDesc:   "Woolworths Food",
		},
		{
			name:       "code tokens are dropped",
			text:       "21/01/2024 POS123 Pick n Pay 75.50",
			wantCount:  1,
			wantDate:   "2024-01-21",
			wantAmount: "75.5",
			wantDesc:   "Pick n Pay",
		},
		{
			name:       "description falls back to default",
			text:       "22/01/2024 99.00",
			wantCount:  1,
			wantDate:   "2024-01-22",
			wantAmount: "99",
			wantDesc:   "Transaction",
		},
		{
			name:      "implausible amount is ignored",
			text:      "23/01/2024 Balance 2,500,000.00",
			wantCount: 0,
		},
		{
			name:      "no date",
			text:      "Opening balance 1,000.00",
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocateTransactions(tt.text)
			if len(got) != tt.wantCount {
				t.Fatalf("got %d transactions (%+v), want %d", len(got), got, tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			tx := got[0]
			if tx.Date != tt.wantDate {
				t.Errorf("Date = %q, want %q", tx.Date, tt.wantDate)
			}
			if !tx.Amount.Equal(decimal.RequireFromString(tt.wantAmount)) {
				t.Errorf("Amount = %s, want %s", tx.Amount, tt.wantAmount)
			}
			if tx.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", tx.Description, tt.wantDesc)
			}
		})
	}
}

func TestLocateTransactions_ColumnarLineIsDeduplicated(t *testing.T) {
	text := "15/01/2024    Checkers Sandton    450.00\n16/01/2024    Uber Trip    120.00"

	got := LocateTransactions(text)

	if len(got) != 2 {
		t.Fatalf("got %d transactions (%+v), want 2", len(got), got)
	}
	if got[0].Description != "Checkers Sandton" || got[1].Description != "Uber Trip" {
		t.Errorf("descriptions = %q, %q", got[0].Description, got[1].Description)
	}
}
