package deid

import (
	"fmt"
	"strings"

	"clinical-deid/internal/oracle"
)

// action is what the NER pass does with a span of a given label.
type action struct {
	mask        bool
	placeholder Placeholder
	// needsOrgKeyword restricts masking to spans mentioning one of orgKeywords.
	needsOrgKeyword bool
}

// labelActions is the label → action table. Labels absent here are ignored.
var labelActions = map[oracle.Label]action{
	oracle.LabelPerson: {mask: true, placeholder: PlaceholderName},
	oracle.LabelOrg:    {mask: true, placeholder: PlaceholderOrg, needsOrgKeyword: true},
	oracle.LabelGPE:    {mask: true, placeholder: PlaceholderAddress},
	oracle.LabelLoc:    {mask: true, placeholder: PlaceholderAddress},
	oracle.LabelFac:    {mask: true, placeholder: PlaceholderAddress},
	oracle.LabelDate:   {mask: true, placeholder: PlaceholderDate},
}

// orgKeywords mark organisations whose names identify where care happened.
var orgKeywords = []string{"hospital", "clinic", "insurance"}

// Outcome records why the NER pass did or did not mask a span.
type Outcome int

// Span outcomes.
const (
	OutcomeMasked        Outcome = iota
	OutcomeAlreadyMasked         // span text is a placeholder
	OutcomeWhitelisted           // clinical keyword
	OutcomeIgnored               // label has no action, or ORG without keyword
	OutcomeOverlap               // offset strategy: overlaps a placeholder or an earlier span
)

var outcomeNames = [...]string{
	OutcomeMasked:        "masked",
	OutcomeAlreadyMasked: "already_masked",
	OutcomeWhitelisted:   "whitelisted",
	OutcomeIgnored:       "ignored",
	OutcomeOverlap:       "overlap",
}

func (o Outcome) String() string {
	if int(o) >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(b []byte) error {
	for i, name := range outcomeNames {
		if name == string(b) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// decide applies the skip rules and the label table to one span.
func decide(span oracle.Span, keywords KeywordSet) (Placeholder, Outcome) {
	if LooksMasked(span.Text) {
		return 0, OutcomeAlreadyMasked
	}
	lower := Lower(span.Text)
	if keywords != nil && keywords.Contains(lower) {
		return 0, OutcomeWhitelisted
	}
	act, ok := labelActions[span.Label]
	if !ok || !act.mask {
		return 0, OutcomeIgnored
	}
	if act.needsOrgKeyword && !containsAny(lower, orgKeywords) {
		return 0, OutcomeIgnored
	}
	return act.placeholder, OutcomeMasked
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
