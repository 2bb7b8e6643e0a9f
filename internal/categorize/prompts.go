package categorize

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-importer/internal/domain"
)

// buildCategorizationPrompt lists the items with 1-based indexes and
// constrains the answer to the given vocabulary.
func buildCategorizationPrompt(vocabulary []string, items []domain.RawTransaction) string {
	var b strings.Builder
	b.WriteString("You categorize personal bank transactions (all are expenses).\n\n")
	b.WriteString("Allowed categories (use EXACTLY one of these names, lowercase):\n")
	for _, c := range vocabulary {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\nTransactions:\n")
	for i, tx := range items {
		fmt.Fprintf(&b, "%d. %q amount %s", i+1, tx.Description, tx.Amount.StringFixed(2))
		if tx.Date != "" {
			b.WriteString(" date " + tx.Date)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRules:\n")
	fmt.Fprintf(&b, "- Return one object per transaction, %d objects in total.\n", len(items))
	b.WriteString("- \"index\" is the transaction number from the list above.\n")
	b.WriteString("- \"confidence\" is a number between 0 and 1.\n")
	fmt.Fprintf(&b, "- If unsure, use %q.\n\n", FallbackCategory)
	b.WriteString("Return ONLY a raw JSON array like [{\"index\": 1, \"category\": \"groceries\", \"confidence\": 0.8}].\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	return b.String()
}
