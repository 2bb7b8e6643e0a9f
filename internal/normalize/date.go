package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-importer/internal/domain"
)

var (
	isoDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	numericDate = regexp.MustCompile(`^(\d{1,4})[/.\-](\d{1,2})[/.\-](\d{1,4})$`)
)

// fallbackLayouts are tried in order when the numeric heuristics do not apply.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 02 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"02 Jan 06",
	"Mon, 02 Jan 2006",
	"Monday, 2 January 2006",
	"20060102",
}

// ParseDate canonicalizes a statement date to YYYY-MM-DD. It never fails:
// input that matches no known format degrades to today's date.
func ParseDate(s string) string {
	return ParseDateAt(s, time.Now())
}

// ParseDateAt is ParseDate with an explicit "today".
func ParseDateAt(s string, now time.Time) string {
	v := strings.Trim(strings.TrimSpace(s), `"'`)

	if isoDate.MatchString(v) {
		if _, err := time.Parse(domain.DateLayout, v); err == nil {
			return v
		}
	}

	if m := numericDate.FindStringSubmatch(v); m != nil {
		if d, ok := fromNumericParts(m[1], m[2], m[3]); ok {
			return d.Format(domain.DateLayout)
		}
	}

	for _, candidate := range []string{v, strings.ReplaceAll(v, ".", "")} {
		for _, layout := range fallbackLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t.Format(domain.DateLayout)
			}
		}
	}

	return now.Format(domain.DateLayout)
}

// fromNumericParts applies the field-width heuristic: a four-digit first field
// is a year (YYYY/MM/DD), otherwise the layout is DD/MM/YYYY.
func fromNumericParts(a, b, c string) (time.Time, bool) {
	var year, month, day int
	if len(a) == 4 {
		year, month, day = atoi(a), atoi(b), atoi(c)
	} else {
		if len(c) != 2 && len(c) != 4 {
			return time.Time{}, false
		}
		day, month, year = atoi(a), atoi(b), atoi(c)
		if len(c) == 2 {
			year += 2000
		}
		// MM/DD exports are recognizable only when the day cannot be a month.
		if month > 12 && day <= 12 {
			day, month = month, day
		}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
