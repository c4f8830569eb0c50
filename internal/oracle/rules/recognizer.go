// Package rules is the built-in NER oracle: a deterministic tokenizer plus a
// small rule recognizer for the labels the masking pass consumes.
//
// It needs no model and no network, which makes it the default backend for
// tests and air-gapped installs. Its recall is far below a trained model;
// deployments that need better name detection point the pipeline at the
// sidecar, ollama or comprehend backends instead.
//
// Recognition passes run in a fixed order and each token is consumed at most
// once, so spans never overlap:
//
//  1. DATE    month + day/year, weekday names
//  2. PERSON  title (Mr, Dr, Patient, ...) followed by 1-3 capitalized words,
//     then every other whole-word occurrence of each name found that way
//  3. ORG     capitalized words ending in an organisation suffix
//  4. FAC     capitalized words ending in a facility suffix
//  5. GPE/LOC gazetteer lookup, up to three words
package rules

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"clinical-deid/internal/oracle"
)

const (
	maxNameWords   = 3
	maxPrefixWords = 4
)

// Oracle implements oracle.Oracle with the rule recognizer.
// The zero value is ready to use.
type Oracle struct{}

// New returns the rule oracle.
func New() *Oracle { return &Oracle{} }

// Name implements oracle.Oracle.
func (*Oracle) Name() string { return "rules" }

// Ping implements oracle.Oracle. The rule oracle is always available.
func (*Oracle) Ping(context.Context) error { return nil }

// Tokenize implements oracle.Tokenizer.
func (*Oracle) Tokenize(ctx context.Context, text string) ([]oracle.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Tokenize(text), nil
}

// Recognize implements oracle.Recognizer.
func (*Oracle) Recognize(ctx context.Context, text string) ([]oracle.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Recognize(text), nil
}

// Recognize returns entity spans in text, sorted by Start.
func Recognize(text string) []oracle.Span {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	r := &recognizer{
		text:   text,
		tokens: tokens,
		lower:  make([]string, len(tokens)),
		used:   make([]bool, len(tokens)),
	}
	for i, t := range tokens {
		r.lower[i] = strings.ToLower(t.Text)
	}

	r.dates()
	r.persons()
	r.repeatPersons()
	r.suffixed(orgSuffixes, oracle.LabelOrg)
	r.suffixed(facilitySuffixes, oracle.LabelFac)
	r.gazetteer()

	sort.SliceStable(r.spans, func(i, j int) bool { return r.spans[i].Start < r.spans[j].Start })
	return r.spans
}

type recognizer struct {
	text   string
	tokens []oracle.Token
	lower  []string
	used   []bool
	spans  []oracle.Span
}

// emit records tokens[from..to] (inclusive) as one span and marks them used.
func (r *recognizer) emit(from, to int, label oracle.Label) {
	r.emitBytes(from, to, r.tokens[from].Start, r.tokens[to].End, label)
}

// emitBytes records text[start:end] as a span and marks tokens[from..to]
// used. The span may end inside the last token ("Smith" in "Smith's").
func (r *recognizer) emitBytes(from, to, start, end int, label oracle.Label) {
	r.spans = append(r.spans, oracle.Span{
		Text:  r.text[start:end],
		Label: label,
		Start: start,
		End:   end,
	})
	for k := from; k <= to; k++ {
		r.used[k] = true
	}
}

// adjacent reports whether tokens i and i+1 are separated only by spaces or
// tabs on the same line.
func (r *recognizer) adjacent(i int) bool {
	gap := r.text[r.tokens[i].End:r.tokens[i+1].Start]
	return !strings.ContainsAny(gap, "\r\n")
}

func (r *recognizer) free(i int) bool {
	return i >= 0 && i < len(r.tokens) && !r.used[i]
}

func (r *recognizer) dates() {
	for i := range r.tokens {
		if !r.free(i) || !capitalized(r.tokens[i].Text) {
			continue
		}
		switch {
		case weekdays[r.lower[i]]:
			r.emit(i, i, oracle.LabelDate)
		case months[r.lower[i]]:
			end := r.dateTail(i)
			if end > i {
				r.emit(i, end, oracle.LabelDate)
			}
		}
	}
}

// dateTail returns the index of the last token of a date that starts with the
// month at i: "March 2021", "May 12", "May 12, 2023". It returns i when no
// number follows.
func (r *recognizer) dateTail(i int) int {
	j := i + 1
	if !r.free(j) || !r.adjacent(i) || !digits(r.tokens[j].Text) {
		return i
	}
	n := len(r.tokens[j].Text)
	if n == 4 {
		return j
	}
	if n > 2 {
		return i
	}
	// Day; try to absorb ", YYYY".
	k := j + 1
	if r.free(k) && r.tokens[k].Text == "," && r.free(k+1) && len(r.tokens[k+1].Text) == 4 && digits(r.tokens[k+1].Text) {
		return k + 1
	}
	if r.free(k) && len(r.tokens[k].Text) == 4 && digits(r.tokens[k].Text) {
		return k
	}
	return j
}

func (r *recognizer) persons() {
	for i := range r.tokens {
		if !r.free(i) || !personTitles[r.lower[i]] {
			continue
		}
		j := i + 1
		for skipped := 0; skipped < 2 && r.free(j) && (r.tokens[j].Text == "." || r.tokens[j].Text == ":"); skipped++ {
			j++
		}
		if !r.free(j) || personTitles[r.lower[j]] {
			continue
		}
		last := -1
		for k := j; k < j+maxNameWords && r.free(k) && r.nameWord(k); k++ {
			if k > j && !r.adjacent(k-1) {
				break
			}
			last = k
		}
		if last >= 0 {
			r.emit(j, last, oracle.LabelPerson)
		}
	}
}

// repeatPersons labels later and earlier mentions of names already found
// after a title: "Mr John Smith met John Smith's wife" yields two spans.
func (r *recognizer) repeatPersons() {
	var names []string
	seen := make(map[string]bool)
	for _, s := range r.spans {
		if s.Label == oracle.LabelPerson && !seen[s.Text] {
			seen[s.Text] = true
			names = append(names, s.Text)
		}
	}
	for _, name := range names {
		for from := 0; from < len(r.text); {
			idx := strings.Index(r.text[from:], name)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(name)
			from = end
			if !wholeWord(r.text, start, end) {
				continue
			}
			if first, last, ok := r.tokenRange(start, end); ok {
				r.emitBytes(first, last, start, end, oracle.LabelPerson)
			}
		}
	}
}

// tokenRange returns the free tokens covering text[start:end]. The first
// token must begin at start.
func (r *recognizer) tokenRange(start, end int) (first, last int, ok bool) {
	first = sort.Search(len(r.tokens), func(i int) bool { return r.tokens[i].Start >= start })
	if first == len(r.tokens) || r.tokens[first].Start != start {
		return 0, 0, false
	}
	for last = first; ; last++ {
		if r.used[last] {
			return 0, 0, false
		}
		if r.tokens[last].End >= end {
			return first, last, true
		}
		if last+1 == len(r.tokens) {
			return 0, 0, false
		}
	}
}

// wholeWord reports whether text[start:end] has no letter or digit directly
// on either side.
func wholeWord(text string, start, end int) bool {
	if start > 0 {
		if c, _ := utf8.DecodeLastRuneInString(text[:start]); unicode.IsLetter(c) || unicode.IsDigit(c) {
			return false
		}
	}
	if end < len(text) {
		if c, _ := utf8.DecodeRuneInString(text[end:]); unicode.IsLetter(c) || unicode.IsDigit(c) {
			return false
		}
	}
	return true
}

// nameWord reports whether token k can be part of a personal name.
func (r *recognizer) nameWord(k int) bool {
	w := r.lower[k]
	if personTitles[w] || months[w] || weekdays[w] || orgSuffixes[w] || facilitySuffixes[w] {
		return false
	}
	return capitalized(r.tokens[k].Text)
}

// suffixed emits spans of capitalized words ending in one of suffixes.
func (r *recognizer) suffixed(suffixes map[string]bool, label oracle.Label) {
	for i := range r.tokens {
		if !r.free(i) || !suffixes[r.lower[i]] || !capitalized(r.tokens[i].Text) {
			continue
		}
		first := i
		for k := i - 1; k >= 0 && i-k <= maxPrefixWords; k-- {
			if !r.free(k) || !capitalized(r.tokens[k].Text) || !r.adjacent(k) {
				break
			}
			first = k
		}
		if first < i {
			r.emit(first, i, label)
		}
	}
}

func (r *recognizer) gazetteer() {
	for i := range r.tokens {
		if !r.free(i) || !capitalized(r.tokens[i].Text) {
			continue
		}
		for n := maxGazetteerWords; n >= 1; n-- {
			last := i + n - 1
			if !r.run(i, last) {
				continue
			}
			key := strings.Join(r.lower[i:last+1], " ")
			if gpeNames[key] {
				r.emit(i, last, oracle.LabelGPE)
				break
			}
			if locNames[key] {
				r.emit(i, last, oracle.LabelLoc)
				break
			}
		}
	}
}

// run reports whether tokens from..to are all free and on one line.
func (r *recognizer) run(from, to int) bool {
	if to >= len(r.tokens) {
		return false
	}
	for k := from; k <= to; k++ {
		if r.used[k] {
			return false
		}
		if k < to && !r.adjacent(k) {
			return false
		}
	}
	return true
}

// capitalized reports whether s starts with an upper-case letter and
// contains letters only (inner hyphens and apostrophes allowed).
func capitalized(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, c := range s {
		if !unicode.IsLetter(c) && c != '-' && c != '\'' && c != '’' {
			return false
		}
	}
	return true
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
