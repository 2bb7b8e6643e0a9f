package pipeline

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/normalize"
)

type columnRole string

const (
	roleDate        columnRole = "date"
	roleDescription columnRole = "description"
	roleAmount      columnRole = "amount"
	roleReference   columnRole = "reference"
)

// columnAliases lists acceptable header names per role, most specific intent first.
var columnAliases = []struct {
	role     columnRole
	aliases  []string
	required bool
}{
	{roleDate, []string{"date", "transaction date", "posting date", "value date", "trans date", "booking date"}, true},
	{roleDescription, []string{"description", "details", "narrative", "memo", "payee", "merchant", "particulars"}, true},
	{roleAmount, []string{"amount", "debit", "withdrawal", "money out", "paid out"}, true},
	{roleReference, []string{"reference", "ref", "transaction id", "cheque"}, false},
}

type columnMap map[columnRole]int

// resolveColumns assigns header positions to roles. For every role the aliases
// are tried in order, and for each alias the headers in order; the first
// header containing the alias wins.
func resolveColumns(headers []string) (columnMap, []string) {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(cleanCell(h))
	}

	cols := make(columnMap)
	var missing []string
	for _, spec := range columnAliases {
		idx := -1
	search:
		for _, alias := range spec.aliases {
			for i, h := range lower {
				if strings.Contains(h, alias) {
					idx = i
					break search
				}
			}
		}
		if idx >= 0 {
			cols[spec.role] = idx
			continue
		}
		if spec.required {
			missing = append(missing, fmt.Sprintf("missing required column: %s (expected one of: %s)",
				spec.role, strings.Join(spec.aliases, ", ")))
		}
	}
	return cols, missing
}

// tableRow is one data row with its 1-based position among non-blank rows.
type tableRow struct {
	number int
	cells  []string
}

// ParseDelimitedText recovers transactions from comma-separated (or semicolon,
// tab or pipe separated) statement exports.
func ParseDelimitedText(content string) domain.ParseResult {
	if strings.TrimSpace(content) == "" {
		return failed("file is empty")
	}

	var lines []string
	for _, l := range strings.Split(content, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return failed("file has no data rows")
	}

	delim := sniffDelimiter(lines[0])
	header := splitRecord(lines[0], delim)

	rows := make([]tableRow, 0, len(lines)-1)
	for i, l := range lines[1:] {
		rows = append(rows, tableRow{number: i + 2, cells: splitRecord(l, delim)})
	}
	return parseTable(header, rows)
}

// parseTable applies column resolution and row parsing shared by delimited
// text and spreadsheets.
func parseTable(header []string, rows []tableRow) domain.ParseResult {
	result := domain.ParseResult{Transactions: []domain.RawTransaction{}, Errors: []string{}}

	cols, missing := resolveColumns(header)
	if len(missing) > 0 {
		result.Errors = append(result.Errors, missing...)
		return result
	}

	for _, row := range rows {
		tx, skip, err := parseRowSafe(cols, row.cells)
		if err != nil {
			result.AddError("Error parsing row %d: %s", row.number, err.Error())
			continue
		}
		if skip {
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}

	if len(result.Transactions) == 0 && len(result.Errors) == 0 {
		result.AddError("no valid transactions found")
	}
	return result
}

func parseRowSafe(cols columnMap, cells []string) (tx domain.RawTransaction, skip bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return parseRow(cols, cells)
}

func parseRow(cols columnMap, cells []string) (domain.RawTransaction, bool, error) {
	cell := func(role columnRole) string {
		i, ok := cols[role]
		if !ok || i >= len(cells) {
			return ""
		}
		return cleanCell(cells[i])
	}

	desc := cell(roleDescription)
	amountStr := cell(roleAmount)
	if desc == "" && amountStr == "" {
		return domain.RawTransaction{}, true, nil
	}

	amount, err := normalize.ParseAmount(amountStr)
	if err != nil {
		return domain.RawTransaction{}, false, err
	}
	if amount.IsZero() {
		return domain.RawTransaction{}, true, nil
	}

	return domain.RawTransaction{
		Date:        normalize.ParseDate(cell(roleDate)),
		Description: desc,
		Amount:      amount,
		Reference:   cell(roleReference),
	}, false, nil
}

// splitRecord splits a line on delim; a double quote toggles quoted mode in
// which delimiters are literal.
func splitRecord(line string, delim rune) []string {
	var (
		fields   []string
		b        strings.Builder
		inQuotes bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(fields, b.String())
}

// sniffDelimiter picks the most frequent unquoted candidate in the header.
func sniffDelimiter(header string) rune {
	counts := make(map[rune]int)
	inQuotes := false
	for _, r := range header {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := ',', counts[',']
	for _, r := range []rune{';', '\t', '|'} {
		if counts[r] > bestCount {
			best, bestCount = r, counts[r]
		}
	}
	return best
}

func cleanCell(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}

func failed(msg string) domain.ParseResult {
	return domain.ParseResult{Transactions: []domain.RawTransaction{}, Errors: []string{msg}}
}
