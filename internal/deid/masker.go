// Package deid masks protected health information in clinical notes.
//
// Masking runs in two passes. The regex pass replaces dates, contact
// details, identifiers, street addresses and known cities with placeholders.
// The NER pass then asks the oracle for entity spans over the regex-masked
// text and replaces those the label table selects, skipping spans that are
// already placeholders and clinical keywords.
//
// Two replacement strategies exist for the NER pass:
//
//   - StrategyOffset (default) replaces each accepted span at its own
//     offsets. Spans overlapping a placeholder or an earlier accepted span
//     are skipped.
//   - StrategySurface replaces every occurrence of an accepted span's text,
//     in oracle order. Repeated mentions of a name are all masked by the
//     first span, and unrelated words sharing the surface are masked too.
package deid

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"clinical-deid/internal/oracle"
)

// Strategy selects how NER spans are substituted.
type Strategy int

// Replacement strategies.
const (
	StrategyOffset Strategy = iota
	StrategySurface
)

func (s Strategy) String() string {
	if s == StrategySurface {
		return "surface"
	}
	return "offset"
}

// ParseStrategy parses "offset" or "surface". Empty means offset.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "offset":
		return StrategyOffset, nil
	case "surface":
		return StrategySurface, nil
	default:
		return StrategyOffset, fmt.Errorf("unknown mask strategy %q", s)
	}
}

// Decision is the NER pass verdict on one oracle span. It carries no text.
type Decision struct {
	Label       oracle.Label `json:"label"`
	Placeholder *Placeholder `json:"placeholder,omitempty"`
	Outcome     Outcome      `json:"outcome"`
}

// Result is the output of Masker.Mask.
type Result struct {
	Text         string     `json:"text"`
	Placeholders Counts     `json:"placeholders"`
	Decisions    []Decision `json:"decisions"`
	RuleStats    RuleStats  `json:"ruleStats"`
}

// Masker runs both masking passes. It is safe for concurrent use once built.
type Masker struct {
	rules    []Rule
	oracle   oracle.Recognizer
	keywords KeywordSet
	strategy Strategy
}

// Option configures a Masker.
type Option func(*Masker)

// WithStrategy sets the NER replacement strategy.
func WithStrategy(s Strategy) Option { return func(m *Masker) { m.strategy = s } }

// WithRules replaces the regex rules.
func WithRules(rules []Rule) Option { return func(m *Masker) { m.rules = rules } }

// WithKeywords replaces the clinical keyword whitelist.
func WithKeywords(k KeywordSet) Option { return func(m *Masker) { m.keywords = k } }

// NewMasker returns a Masker using rec for the NER pass, the default rules
// and cities, the default keyword whitelist and the offset strategy.
func NewMasker(rec oracle.Recognizer, opts ...Option) *Masker {
	m := &Masker{
		rules:    NewRules(DefaultCities),
		oracle:   rec,
		keywords: NewStaticKeywords(DefaultClinicalKeywords...),
		strategy: StrategyOffset,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Strategy returns the configured replacement strategy.
func (m *Masker) Strategy() Strategy { return m.strategy }

// Mask de-identifies text.
func (m *Masker) Mask(ctx context.Context, text string) (Result, error) {
	masked, stats := ApplyRules(text, m.rules)

	spans, err := m.oracle.Recognize(ctx, masked)
	if err != nil {
		return Result{}, fmt.Errorf("recognize entities: %w", err)
	}
	spans = oracle.ValidateSpans(masked, spans)

	var decisions []Decision
	if m.strategy == StrategySurface {
		masked, decisions = m.replaceSurface(masked, spans)
	} else {
		masked, decisions = m.replaceOffsets(masked, spans)
	}

	return Result{
		Text:         masked,
		Placeholders: CountPlaceholders(masked),
		Decisions:    decisions,
		RuleStats:    stats,
	}, nil
}

func (m *Masker) replaceSurface(text string, spans []oracle.Span) (string, []Decision) {
	decisions := make([]Decision, 0, len(spans))
	for _, s := range spans {
		ph, outcome := decide(s, m.keywords)
		decisions = append(decisions, newDecision(s.Label, ph, outcome))
		if outcome == OutcomeMasked {
			text = strings.ReplaceAll(text, s.Text, ph.String())
		}
	}
	return text, decisions
}

type edit struct {
	start, end int
	repl       string
}

func (m *Masker) replaceOffsets(text string, spans []oracle.Span) (string, []Decision) {
	taken := placeholderRegions(text)
	decisions := make([]Decision, 0, len(spans))
	var edits []edit
	for _, s := range spans {
		ph, outcome := decide(s, m.keywords)
		if outcome == OutcomeMasked && overlapsAny(s.Start, s.End, taken) {
			outcome = OutcomeOverlap
		}
		decisions = append(decisions, newDecision(s.Label, ph, outcome))
		if outcome != OutcomeMasked {
			continue
		}
		taken = append(taken, []int{s.Start, s.End})
		edits = append(edits, edit{start: s.Start, end: s.End, repl: ph.String()})
	}

	if len(edits) == 0 {
		return text, decisions
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, e := range edits {
		b.WriteString(text[last:e.start])
		b.WriteString(e.repl)
		last = e.end
	}
	b.WriteString(text[last:])
	return b.String(), decisions
}

func overlapsAny(start, end int, regions [][]int) bool {
	for _, r := range regions {
		if start < r[1] && r[0] < end {
			return true
		}
	}
	return false
}

func newDecision(label oracle.Label, ph Placeholder, outcome Outcome) Decision {
	d := Decision{Label: label, Outcome: outcome}
	if outcome == OutcomeMasked {
		p := ph
		d.Placeholder = &p
	}
	return d
}
