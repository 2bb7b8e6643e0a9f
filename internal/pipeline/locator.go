package pipeline

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/normalize"
)

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}\b`),
		regexp.MustCompile(`\b\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{2,4}\b`),
	}

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`-?(?:\bR|\$|£|€)\s?-?\d{1,3}(?:[ ,]?\d{3})*(?:[.,]\d{2})?`),
		regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d{2})?\b`),
		regexp.MustCompile(`\b\d+[.,]\d{2}\b`),
	}

	columnGap    = regexp.MustCompile(` {3,}`)
	numericToken = regexp.MustCompile(`^[-+]?[\d.,/\-()]+$`)
	codeToken    = regexp.MustCompile(`^[A-Za-z]{2,4}\d+$`)
	symbolToken  = regexp.MustCompile(`^[R$£€\-+*#:|]+$`)

	minPlausibleAmount = decimal.New(1, -2)
)

// fallbackDescription is used when no usable description text is found.
const fallbackDescription = "Transaction"

// LocateTransactions scans free text for lines carrying a date and an amount.
// It is the last resort when no structured extractor succeeds.
func LocateTransactions(text string) []domain.RawTransaction {
	var found []domain.RawTransaction

	for _, c := range candidateLines(text) {
		line, prev, next := c.text, c.prev, c.next
		for _, dp := range datePatterns {
			dateText := dp.FindString(line)
			if dateText == "" {
				continue
			}

			amount, ok := findAmount(line, next, prev)
			if !ok {
				continue
			}

			desc := describe(line)
			if len(desc) < 3 {
				if alt := describe(next); alt != "" {
					desc = alt
				}
			}
			if desc == "" {
				desc = fallbackDescription
			}

			found = append(found, domain.RawTransaction{
				Date:        normalize.ParseDate(dateText),
				Description: desc,
				Amount:      amount,
			})
		}
	}

	return normalize.Dedupe(found)
}

// candidate is a line to scan together with the neighbors its window uses.
type candidate struct {
	text, prev, next string
}

// candidateLines returns every non-blank trimmed line followed by its column
// fragments when the line is laid out with wide gaps. Whole lines neighbor
// the adjacent whole lines; fragments neighbor their own line's pieces.
func candidateLines(text string) []candidate {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(strings.TrimRight(l, "\r")); l != "" {
			lines = append(lines, l)
		}
	}

	var out []candidate
	for i, l := range lines {
		c := candidate{text: l}
		if i > 0 {
			c.prev = lines[i-1]
		}
		if i+1 < len(lines) {
			c.next = lines[i+1]
		}
		out = append(out, c)

		if !columnGap.MatchString(l) {
			continue
		}
		group := []string{l}
		for _, frag := range columnGap.Split(l, -1) {
			if frag = strings.TrimSpace(frag); frag != "" {
				group = append(group, frag)
			}
		}
		for k := 1; k < len(group); k++ {
			fc := candidate{text: group[k], prev: group[k-1]}
			if k+1 < len(group) {
				fc.next = group[k+1]
			}
			out = append(out, fc)
		}
	}
	return out
}

// findAmount looks at the line itself first and then at the surrounding window.
func findAmount(line, next, prev string) (decimal.Decimal, bool) {
	if amount, ok := firstPlausibleAmount(maskDates(line)); ok {
		return amount, true
	}
	window := strings.Join([]string{line, next, prev}, " ")
	return firstPlausibleAmount(maskDates(window))
}

func firstPlausibleAmount(s string) (decimal.Decimal, bool) {
	for _, ap := range amountPatterns {
		for _, m := range ap.FindAllString(s, -1) {
			amount, err := normalize.ParseAmount(m)
			if err != nil {
				continue
			}
			if amount.GreaterThan(minPlausibleAmount) && amount.LessThan(domain.MaxPlausibleAmount) {
				return amount, true
			}
		}
	}
	return decimal.Zero, false
}

func maskDates(s string) string {
	return mask(s, datePatterns)
}

func mask(s string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		s = p.ReplaceAllStringFunc(s, func(m string) string {
			return strings.Repeat(" ", len(m))
		})
	}
	return s
}

// describe strips dates, amounts and noise tokens from a line.
func describe(line string) string {
	s := mask(maskDates(line), amountPatterns)
	var kept []string
	for _, tok := range strings.Fields(s) {
		if numericToken.MatchString(tok) || codeToken.MatchString(tok) || symbolToken.MatchString(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
