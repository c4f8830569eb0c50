package deid

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule is one regex substitution of the pre-NER pass.
//
// A bounded rule only replaces matches that start and end on a Unicode word
// boundary. RE2's \b only knows ASCII word characters, so bounded patterns
// are written without it and the boundary is checked after matching.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Placeholder Placeholder

	whole *regexp.Regexp // ^(?:Pattern)$, set for bounded rules
}

// DefaultCities are the city names masked by the city rule.
var DefaultCities = []string{
	"Chennai", "Mumbai", "Delhi", "Bangalore", "Kolkata",
	"Hyderabad", "Pune", "Ahmedabad", "Jaipur", "Lucknow",
}

// Unicode-aware stand-ins for \d, \s and \w.
const (
	dig   = `\p{Nd}`
	space = `[\s\p{Z}\v]`
	word  = `\p{L}\p{M}\p{N}_`
)

const months = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*`

var (
	numericDateSrc = dig + `{1,2}[/-]` + dig + `{1,2}[/-]` + dig + `{2,4}` +
		`|` + dig + `{4}[/-]` + dig + `{1,2}[/-]` + dig + `{1,2}`
	monthDateSrc = `(?i)` + months + space + dig + `{1,2},?` + space + dig + `{4}` +
		`|` + dig + `{1,2}` + space + months + `,?` + space + dig + `{4}`
	phoneSrc = `(?:\+?` + dig + `{1,3}[-.\s\p{Z}\v]?)?` +
		`(?:\(?` + dig + `{2,4}\)?[-.\s\p{Z}\v]?)?` +
		dig + `{3,5}[-.\s\p{Z}\v]?` + dig + `{4}`
	emailSrc = `[` + word + `.-]+@[` + word + `.-]+\.[` + word + `]{2,4}`
	idSrc    = `(?:[A-Z]{2,10}-` + dig + `{3,10}|` + dig + `{3,10}-[A-Z]{1,10}` +
		`|[A-Z]{2}` + dig + `{5,10}|` + dig + `{5,10}[A-Z]{2})`
	addressSrc = `(?i)` + dig + `{1,5}` + space + `[` + word + `\s\p{Z}'’]+` +
		`(?:Street|St|Road|Rd|Avenue|Ave|Lane|Ln|Boulevard|Blvd|Drive|Dr|Court|Ct|MG Road|Main Road)?` +
		`[,.\s\p{Z}]*[A-Za-z\s\p{Z}]*` +
		`(?:` + dig + `{3,6})?`
)

// NewRules returns the substitution rules in application order: numeric
// dates, month dates, phone, email, ID codes, street addresses, cities.
// An empty cities list drops the city rule.
func NewRules(cities []string) []Rule {
	rules := []Rule{
		boundedRule("numeric_date", numericDateSrc, PlaceholderDate),
		boundedRule("month_date", monthDateSrc, PlaceholderDate),
		{Name: "phone", Pattern: regexp.MustCompile(phoneSrc), Placeholder: PlaceholderContact},
		boundedRule("email", emailSrc, PlaceholderContact),
		boundedRule("id", idSrc, PlaceholderID),
		boundedRule("address", addressSrc, PlaceholderAddress),
	}
	if src := citySource(cities); src != "" {
		rules = append(rules, boundedRule("city", src, PlaceholderAddress))
	}
	return rules
}

func boundedRule(name, src string, ph Placeholder) Rule {
	return Rule{
		Name:        name,
		Pattern:     regexp.MustCompile(src),
		Placeholder: ph,
		whole:       regexp.MustCompile(`^(?:` + src + `)$`),
	}
}

func citySource(cities []string) string {
	quoted := make([]string, 0, len(cities))
	for _, c := range cities {
		if c = strings.TrimSpace(c); c != "" {
			quoted = append(quoted, regexp.QuoteMeta(c))
		}
	}
	if len(quoted) == 0 {
		return ""
	}
	return `(?i)(?:` + strings.Join(quoted, "|") + `)`
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r)
}

// atBoundary reports whether byte offset i of text is a word boundary.
func atBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

// boundedEnd returns the end of the longest match of r starting at start
// that ends on a word boundary and is no longer than end, or -1.
func (r Rule) boundedEnd(text string, start, end int) int {
	if atBoundary(text, end) {
		return end
	}
	for p := end - 1; p > start; p-- {
		if utf8.RuneStart(text[p]) && atBoundary(text, p) && r.whole.MatchString(text[start:p]) {
			return p
		}
	}
	return -1
}

// replace substitutes the rule's placeholder for every match and returns
// the number of replacements.
func (r Rule) replace(text string) (string, int) {
	repl := r.Placeholder.String()
	n := 0
	if r.whole == nil {
		out := r.Pattern.ReplaceAllStringFunc(text, func(string) string {
			n++
			return repl
		})
		return out, n
	}

	var b strings.Builder
	last, pos := 0, 0
	for pos < len(text) {
		loc := r.Pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if atBoundary(text, start) && end > start {
			end = r.boundedEnd(text, start, end)
		} else {
			end = -1
		}
		if end < 0 {
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + max(size, 1)
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(repl)
		n++
		last, pos = end, end
	}
	if n == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), n
}

// RuleStats counts matches per rule name.
type RuleStats map[string]int

// ApplyRules runs rules over text in order and returns the result with the
// number of matches each rule replaced.
func ApplyRules(text string, rules []Rule) (string, RuleStats) {
	stats := make(RuleStats, len(rules))
	for _, r := range rules {
		var n int
		text, n = r.replace(text)
		if n > 0 {
			stats[r.Name] += n
		}
	}
	return text, stats
}
