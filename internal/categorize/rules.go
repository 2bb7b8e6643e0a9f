package categorize

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleSpec is the serialized form of one rule-table row.
type RuleSpec struct {
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`
}

// Rule maps a category to the merchant/keyword signatures that identify it.
type Rule struct {
	Category string
	Patterns []*regexp.Regexp
}

// RuleSet is an ordered rule table evaluated first-match.
type RuleSet struct {
	rules []Rule
}

// defaultRuleSpecs is evaluated top to bottom, so more specific signatures
// (e.g. "uber eats") sit in earlier categories than the generic ones ("uber").
var defaultRuleSpecs = []RuleSpec{
	{Category: "groceries", Patterns: []string{
		`checkers`, `pick ?n ?pay`, `woolworths food`, `shoprite`, `\bspar\b`, `food lover`,
		`makro`, `\btesco\b`, `sainsbury`, `\baldi\b`, `\blidl\b`, `whole foods`, `grocer`,
	}},
	{Category: "dining", Patterns: []string{
		`uber ?eats`, `mr ?d food`, `restaurant`, `\bcaf[eé]`, `coffee`, `starbucks`, `\bkfc\b`,
		`mcdonald`, `nando`, `steers`, `debonairs`, `wimpy`, `\bspur\b`, `burger`, `pizza`, `sushi`,
	}},
	{Category: "entertainment", Patterns: []string{
		`ster-?kinekor`, `nu ?metro`, `cinema`, `computicket`, `\bsteam\b`, `playstation`, `xbox`,
	}},
	{Category: "subscriptions", Patterns: []string{
		`netflix`, `spotify`, `showmax`, `\bdstv\b`, `apple\.com`, `google ?\*? ?storage`,
		`youtube ?premium`, `amazon ?prime`, `disney`,
	}},
	{Category: "transport", Patterns: []string{
		`\buber\b`, `\bbolt\b`, `gautrain`, `\btaxi\b`, `\blyft\b`, `parking`, `\be-?toll`, `\btoll\b`,
		`metrorail`, `\btrain\b`,
	}},
	{Category: "fuel", Patterns: []string{
		`\bengen\b`, `\bshell\b`, `\bbp\b`, `\bsasol\b`, `caltex`, `total ?energies`, `petrol`, `\bfuel\b`,
	}},
	{Category: "utilities", Patterns: []string{
		`electricity`, `eskom`, `city of \w+`, `municipal`, `\bwater\b`, `prepaid`, `vodacom`, `\bmtn\b`,
		`telkom`, `cell ?c\b`, `\brain\b`, `internet`, `fibre`,
	}},
	{Category: "housing", Patterns: []string{
		`\brent\b`, `rental`, `bond payment`, `\blevy\b`, `mortgage`,
	}},
	{Category: "health", Patterns: []string{
		`pharmacy`, `\bclicks\b`, `dis-?chem`, `doctor`, `hospital`, `medical`, `dentist`, `optometrist`,
	}},
	{Category: "insurance", Patterns: []string{
		`insurance`, `discovery`, `old mutual`, `sanlam`, `outsurance`, `momentum`,
	}},
	{Category: "shopping", Patterns: []string{
		`takealot`, `amazon`, `mr ?price`, `edgars`, `woolworths`, `h&m`, `\bzara\b`, `\bgame\b`,
		`incredible connection`,
	}},
	{Category: "education", Patterns: []string{
		`school`, `tuition`, `university`, `udemy`, `coursera`,
	}},
	{Category: "travel", Patterns: []string{
		`airbnb`, `booking\.com`, `hotel`, `flysafair`, `airline`, `\blodge\b`,
	}},
	{Category: "personal-care", Patterns: []string{
		`salon`, `barber`, `\bspa\b`, `beauty`,
	}},
	{Category: "fees", Patterns: []string{
		`bank charge`, `service fee`, `monthly fee`, `admin fee`, `\bfee\b`, `interest`,
	}},
	{Category: "transfers", Patterns: []string{
		`transfer`, `\beft\b`, `payment to`,
	}},
}

// DefaultRules returns the built-in rule table.
func DefaultRules() *RuleSet {
	rs, err := NewRuleSet(defaultRuleSpecs)
	if err != nil {
		panic(err)
	}
	return rs
}

// NewRuleSet compiles specs in order. Patterns match case-insensitively.
func NewRuleSet(specs []RuleSpec) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]Rule, 0, len(specs))}
	for _, spec := range specs {
		if spec.Category == "" {
			return nil, fmt.Errorf("NewRuleSet: rule with empty category")
		}
		rule := Rule{Category: spec.Category}
		for _, p := range spec.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("NewRuleSet: category %q: pattern %q: %w", spec.Category, p, err)
			}
			rule.Patterns = append(rule.Patterns, re)
		}
		rs.rules = append(rs.rules, rule)
	}
	return rs, nil
}

// ParseRules reads a YAML rule table:
//
//   - category: groceries
//     patterns: ["checkers", "pick ?n ?pay"]
func ParseRules(data []byte) (*RuleSet, error) {
	var specs []RuleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("ParseRules: decode yaml: %w", err)
	}
	return NewRuleSet(specs)
}

// LoadRules reads a YAML rule table from path.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRules: read %q: %w", path, err)
	}
	return ParseRules(data)
}

// Match returns the category of the first rule with a matching pattern.
func (rs *RuleSet) Match(description string) (string, bool) {
	for _, rule := range rs.rules {
		for _, re := range rule.Patterns {
			if re.MatchString(description) {
				return rule.Category, true
			}
		}
	}
	return "", false
}

// Categories lists rule categories in table order, without duplicates.
func (rs *RuleSet) Categories() []string {
	seen := make(map[string]bool, len(rs.rules))
	out := make([]string, 0, len(rs.rules))
	for _, rule := range rs.rules {
		if !seen[rule.Category] {
			seen[rule.Category] = true
			out = append(out, rule.Category)
		}
	}
	return out
}
