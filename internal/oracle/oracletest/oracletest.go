// Package oracletest provides a scripted oracle for tests.
package oracletest

import (
	"context"
	"strings"
	"sync"

	"clinical-deid/internal/oracle"
	"clinical-deid/internal/oracle/rules"
)

// Fake is an oracle.Oracle that labels fixed surface strings. Every
// occurrence of a registered string becomes a span, in text order, except
// that a string registered earlier wins at a given position. Tokenization
// uses the rule tokenizer.
type Fake struct {
	mu      sync.Mutex
	entries []entry
	calls   int
	err     error
	pingErr error
}

type entry struct {
	text  string
	label oracle.Label
}

// New returns an empty Fake.
func New() *Fake { return &Fake{} }

// Label registers surface text with label and returns f for chaining.
func (f *Fake) Label(text string, label oracle.Label) *Fake {
	f.mu.Lock()
	f.entries = append(f.entries, entry{text: text, label: label})
	f.mu.Unlock()
	return f
}

// FailWith makes Recognize return err.
func (f *Fake) FailWith(err error) *Fake {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	return f
}

// FailPing makes Ping return err.
func (f *Fake) FailPing(err error) *Fake {
	f.mu.Lock()
	f.pingErr = err
	f.mu.Unlock()
	return f
}

// Calls returns the number of Recognize calls so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Name implements oracle.Oracle.
func (f *Fake) Name() string { return "fake" }

// Ping implements oracle.Oracle.
func (f *Fake) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

// Tokenize implements oracle.Tokenizer.
func (f *Fake) Tokenize(_ context.Context, text string) ([]oracle.Token, error) {
	return rules.Tokenize(text), nil
}

// Recognize implements oracle.Recognizer.
func (f *Fake) Recognize(_ context.Context, text string) ([]oracle.Span, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	taken := make([]bool, len(text))
	var spans []oracle.Span
	for _, e := range f.entries {
		if e.text == "" {
			continue
		}
		for from := 0; ; {
			idx := strings.Index(text[from:], e.text)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(e.text)
			if !anyTaken(taken, start, end) {
				for k := start; k < end; k++ {
					taken[k] = true
				}
				spans = append(spans, oracle.Span{Text: e.text, Label: e.label, Start: start, End: end})
			}
			from = end
		}
	}
	sortByStart(spans)
	return spans, nil
}

func anyTaken(taken []bool, start, end int) bool {
	for k := start; k < end; k++ {
		if taken[k] {
			return true
		}
	}
	return false
}

func sortByStart(spans []oracle.Span) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].Start < spans[j-1].Start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}
