package deid

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Placeholder is one of the bracketed tokens that replace masked text.
type Placeholder int

// The closed set of placeholders.
const (
	PlaceholderName Placeholder = iota
	PlaceholderAddress
	PlaceholderContact
	PlaceholderID
	PlaceholderDate
	PlaceholderOrg
)

var placeholderNames = [...]string{
	PlaceholderName:    "NAME",
	PlaceholderAddress: "ADDRESS",
	PlaceholderContact: "CONTACT",
	PlaceholderID:      "ID",
	PlaceholderDate:    "DATE",
	PlaceholderOrg:     "ORG",
}

// Placeholders lists every placeholder in declaration order.
func Placeholders() []Placeholder {
	out := make([]Placeholder, len(placeholderNames))
	for i := range placeholderNames {
		out[i] = Placeholder(i)
	}
	return out
}

// Name returns the bare name, e.g. "NAME".
func (p Placeholder) Name() string {
	if int(p) >= 0 && int(p) < len(placeholderNames) {
		return placeholderNames[p]
	}
	return fmt.Sprintf("Placeholder(%d)", int(p))
}

// String returns the token inserted into text, e.g. "[NAME]".
func (p Placeholder) String() string { return "[" + p.Name() + "]" }

// MarshalText encodes the placeholder by name so it can key JSON maps.
func (p Placeholder) MarshalText() ([]byte, error) { return []byte(p.Name()), nil }

// UnmarshalText decodes a placeholder name, with or without brackets.
func (p *Placeholder) UnmarshalText(b []byte) error {
	name := strings.Trim(string(b), "[]")
	for i, n := range placeholderNames {
		if n == name {
			*p = Placeholder(i)
			return nil
		}
	}
	return fmt.Errorf("unknown placeholder %q", string(b))
}

// placeholderRe matches any placeholder token.
var placeholderRe = regexp.MustCompile(`\[(NAME|ADDRESS|CONTACT|ID|DATE|ORG)\]`)

// LooksMasked reports whether s is bracketed, the test used to skip spans
// that were already replaced by an earlier rule.
func LooksMasked(s string) bool {
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

// Counts maps placeholders to occurrence counts.
type Counts map[Placeholder]int

// MarshalJSON encodes every placeholder, including zero counts, by name.
func (c Counts) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, len(placeholderNames))
	for _, p := range Placeholders() {
		out[p.Name()] = c[p]
	}
	return json.Marshal(out)
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// CountPlaceholders counts the placeholder tokens in text.
func CountPlaceholders(text string) Counts {
	counts := make(Counts, len(placeholderNames))
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		var p Placeholder
		if err := p.UnmarshalText([]byte(m[1])); err == nil {
			counts[p]++
		}
	}
	return counts
}

// placeholderRegions returns the byte ranges of placeholder tokens in text.
func placeholderRegions(text string) [][]int {
	return placeholderRe.FindAllStringIndex(text, -1)
}
