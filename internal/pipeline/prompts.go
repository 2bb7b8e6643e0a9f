package pipeline

import (
	"fmt"
	"strings"
)

func buildExtractionPrompt(chunk string, part, total int) string {
	var b strings.Builder
	b.WriteString("You are a financial statement parser.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Find ALL transactions in the statement text below.\n")
	if total > 1 {
		fmt.Fprintf(&b, "- This is part %d of %d of the statement.\n", part, total)
	}
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a JSON array of objects.\n\n")
	b.WriteString("Each object must have these fields:\n")
	b.WriteString("- \"date\": string, ISO format \"YYYY-MM-DD\"\n")
	b.WriteString("- \"description\": string\n")
	b.WriteString("- \"amount\": number (positive magnitude)\n")
	b.WriteString("- \"reference\": string or null\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Skip opening and closing balances, totals and headers.\n")
	b.WriteString("- If there are no transactions, return [].\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n\n")
	b.WriteString("Statement text:\n")
	b.WriteString(chunk)
	return b.String()
}
