// Package oracle defines the contract between the masking pipeline and the
// external named-entity recognizer ("NER oracle").
//
// The oracle is treated as a black box with two capabilities:
//
//   - Recognize: label spans of text as PERSON, ORG, GPE, LOC, FAC or DATE.
//   - Tokenize: split text into tokens usable for dictionary phrase matching.
//
// Concrete backends live in sub-packages (rules, sidecar, ollama, comprehend)
// and are constructed once at startup. All implementations must be safe for
// concurrent use, since the HTTP server shares a single instance.
//
// Offsets in Span and Token are byte offsets into the string passed to the
// oracle. The invariant text[s.Start:s.End] == s.Text holds for every value
// returned by a well-behaved backend; ValidateSpans enforces it for the rest.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrUnavailable is returned by Ping when the backend cannot serve requests.
var ErrUnavailable = errors.New("oracle unavailable")

// Label classifies a recognized span.
type Label int

// Labels consumed by the masking pass. Anything else a backend reports maps to
// LabelOther and is ignored.
const (
	LabelOther  Label = iota // unrecognized or unused label
	LabelPerson              // people, including fictional
	LabelOrg                 // companies, agencies, institutions
	LabelGPE                 // countries, cities, states
	LabelLoc                 // non-GPE locations, mountain ranges, bodies of water
	LabelFac                 // buildings, airports, highways, bridges
	LabelDate                // absolute or relative dates or periods
)

var labelNames = [...]string{
	LabelOther:  "OTHER",
	LabelPerson: "PERSON",
	LabelOrg:    "ORG",
	LabelGPE:    "GPE",
	LabelLoc:    "LOC",
	LabelFac:    "FAC",
	LabelDate:   "DATE",
}

var labelFromName = map[string]Label{
	"PERSON": LabelPerson,
	"ORG":    LabelOrg,
	"GPE":    LabelGPE,
	"LOC":    LabelLoc,
	"FAC":    LabelFac,
	"DATE":   LabelDate,
}

// String returns the label name, e.g. "PERSON".
func (l Label) String() string {
	if int(l) >= 0 && int(l) < len(labelNames) {
		return labelNames[l]
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// ParseLabel maps a backend label string to a Label. Matching is
// case-insensitive; unknown names return LabelOther.
func ParseLabel(s string) Label {
	if l, ok := labelFromName[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return l
	}
	return LabelOther
}

// MarshalJSON encodes the label as its name.
func (l Label) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a label name. Unknown names decode to LabelOther.
func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = ParseLabel(s)
	return nil
}

// Span is one labelled entity reported by the oracle.
type Span struct {
	Text  string `json:"text"`
	Label Label  `json:"label"`
	Start int    `json:"start"` // byte offset, inclusive
	End   int    `json:"end"`   // byte offset, exclusive
}

// String returns a debug representation, e.g. PERSON("John Smith")[8:18].
func (s Span) String() string {
	return fmt.Sprintf("%s(%q)[%d:%d]", s.Label, s.Text, s.Start, s.End)
}

// Token is one unit of the oracle's tokenization. Whitespace is never a token.
type Token struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Recognizer labels entity spans in text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Span, error)
}

// Tokenizer splits text into tokens for phrase matching.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) ([]Token, error)
}

// Oracle is the full collaborator: recognition, tokenization and a health check.
type Oracle interface {
	Recognizer
	Tokenizer
	// Name identifies the backend in logs and cache keys.
	Name() string
	// Ping reports whether the backend can serve requests. A non-nil error at
	// startup is fatal.
	Ping(ctx context.Context) error
}

// ValidateSpans returns the spans whose offsets lie within text and whose
// Text agrees with the slice they point at. Spans with empty Text get it
// filled from the source. The input slice is not modified.
func ValidateSpans(text string, spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		slice := text[s.Start:s.End]
		if s.Text == "" {
			s.Text = slice
		} else if s.Text != slice {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RuneIndex converts between character (code point) offsets and byte offsets
// for one string. Backends such as spaCy and Comprehend Medical report
// character offsets; everything inside this module uses bytes.
type RuneIndex struct {
	starts []int // byte offset of each rune, plus len(text) as sentinel
}

// NewRuneIndex builds the index for text.
func NewRuneIndex(text string) *RuneIndex {
	starts := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		starts = append(starts, i)
	}
	starts = append(starts, len(text))
	return &RuneIndex{starts: starts}
}

// ByteOffset returns the byte offset of character offset c. Out-of-range
// values return -1.
func (ri *RuneIndex) ByteOffset(c int) int {
	if c < 0 || c >= len(ri.starts) {
		return -1
	}
	return ri.starts[c]
}

// RuneOffset returns the character offset of byte offset b. b must fall on a
// rune boundary; otherwise -1 is returned.
func (ri *RuneIndex) RuneOffset(b int) int {
	lo, hi := 0, len(ri.starts)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case ri.starts[mid] == b:
			return mid
		case ri.starts[mid] < b:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}
