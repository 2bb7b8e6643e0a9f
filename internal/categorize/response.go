package categorize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/llm"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// DefaultDelegateConfidence applies when the delegate omits a usable confidence.
	DefaultDelegateConfidence = 0.7
	// LineScanConfidence applies to categories recovered by the line-scan fallback.
	LineScanConfidence = 0.6
)

const assignmentSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["index", "category"],
		"properties": {
			"index": {"type": "integer", "minimum": 1},
			"category": {"type": "string"},
			"confidence": {"type": "number"}
		}
	}
}`

var assignmentValidator = jsonschema.MustCompileString("categorization.schema.json", assignmentSchema)

// assignment is the delegate's verdict for one item of a sub-batch.
type assignment struct {
	Category   string
	Confidence float64
	Tier       domain.Tier
}

type rawAssignment struct {
	Index      int      `json:"index"`
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
}

// parseAssignments maps a delegate response onto n items. It never fails:
// unparseable responses go through the line scanner and every item without a
// valid answer receives the fallback category.
func parseAssignments(raw string, n int, vocabulary []string) []assignment {
	parsed, err := decodeAssignments(raw)
	if err != nil {
		return lineScanAssignments(raw, n, vocabulary)
	}

	// Folded name to the vocabulary's own spelling.
	canonical := make(map[string]string, len(vocabulary))
	for _, c := range vocabulary {
		canonical[strings.ToLower(c)] = c
	}

	out := fallbackAssignments(n)
	for _, a := range parsed {
		i := a.Index - 1
		if i < 0 || i >= n {
			continue
		}
		category, ok := canonical[strings.ToLower(strings.TrimSpace(a.Category))]
		if !ok {
			continue
		}
		confidence := DefaultDelegateConfidence
		if a.Confidence != nil {
			confidence = clamp(*a.Confidence)
		}
		out[i] = assignment{Category: category, Confidence: confidence, Tier: domain.TierDelegate}
	}
	return out
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func decodeAssignments(raw string) ([]rawAssignment, error) {
	arr, ok := llm.ArraySlice(llm.CleanModelJSON(raw))
	if !ok {
		return nil, fmt.Errorf("decodeAssignments: no JSON array in response")
	}

	var generic interface{}
	if err := json.Unmarshal([]byte(arr), &generic); err != nil {
		return nil, fmt.Errorf("decodeAssignments: unmarshal: %w", err)
	}
	if err := assignmentValidator.Validate(generic); err != nil {
		return nil, fmt.Errorf("decodeAssignments: response does not match schema: %w", err)
	}

	var out []rawAssignment
	if err := json.Unmarshal([]byte(arr), &out); err != nil {
		return nil, fmt.Errorf("decodeAssignments: decode: %w", err)
	}
	return out, nil
}

var numberedLine = regexp.MustCompile(`^\s*(\d+)\s*[.):\-]`)

// lineScanAssignments looks for a known category name in the line belonging
// to each item: lines prefixed "N." address item N, otherwise the n-th
// non-blank line is used.
func lineScanAssignments(raw string, n int, vocabulary []string) []assignment {
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}

	byItem := make(map[int]string)
	for _, l := range lines {
		if m := numberedLine.FindStringSubmatch(l); m != nil {
			if idx, err := strconv.Atoi(m[1]); err == nil && idx >= 1 && idx <= n {
				if _, seen := byItem[idx-1]; !seen {
					byItem[idx-1] = l
				}
			}
		}
	}
	if len(byItem) == 0 {
		for i := 0; i < n && i < len(lines); i++ {
			byItem[i] = lines[i]
		}
	}

	matchers := categoryMatchers(vocabulary)
	out := fallbackAssignments(n)
	for i, line := range byItem {
		lower := strings.ToLower(line)
		for _, m := range matchers {
			if m.pattern.MatchString(lower) {
				out[i] = assignment{Category: m.name, Confidence: LineScanConfidence, Tier: domain.TierDelegate}
				break
			}
		}
	}
	return out
}

type categoryMatcher struct {
	name    string
	pattern *regexp.Regexp
}

// categoryMatchers compiles one whole-word pattern per category, longest name
// first so "personal-care" is not shadowed by "care". The fallback category
// is never matched.
func categoryMatchers(vocabulary []string) []categoryMatcher {
	out := make([]categoryMatcher, 0, len(vocabulary))
	for _, name := range vocabulary {
		folded := strings.ToLower(name)
		if folded == FallbackCategory {
			continue
		}
		out = append(out, categoryMatcher{
			name:    name,
			pattern: regexp.MustCompile(`(^|[^a-z-])` + regexp.QuoteMeta(folded) + `($|[^a-z-])`),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].name) > len(out[j].name) })
	return out
}

func fallbackAssignments(n int) []assignment {
	out := make([]assignment, n)
	for i := range out {
		out[i] = assignment{Category: FallbackCategory, Confidence: FallbackConfidence, Tier: domain.TierFallback}
	}
	return out
}
