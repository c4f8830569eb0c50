package extract

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clinical-deid/internal/oracle"
)

// PhraseMatcher finds term-list phrases in token sequences. Phrases and
// input are compared token by token on lower-cased text, so "ct scan"
// matches "CT Scan" and "CT scan". It is immutable after construction and
// safe for concurrent use.
type PhraseMatcher struct {
	root     *trieNode
	maxWords int
	patterns int
}

type trieNode struct {
	next  map[string]*trieNode
	types []Type // sorted, unique; non-empty when a phrase ends here
}

// Match is one phrase occurrence: tokens[Start:End] matched a phrase of Type.
type Match struct {
	Start int
	End   int
	Type  Type
}

// NewPhraseMatcher tokenizes every term with tok and builds the matcher.
// Using the same tokenizer for terms and notes keeps token boundaries
// consistent.
func NewPhraseMatcher(ctx context.Context, tok oracle.Tokenizer, terms Terms) (*PhraseMatcher, error) {
	m := &PhraseMatcher{root: &trieNode{}}
	lower := cases.Lower(language.Und)
	for _, typ := range Types() {
		for _, term := range terms[typ] {
			tokens, err := tok.Tokenize(ctx, term)
			if err != nil {
				return nil, fmt.Errorf("tokenize term %q: %w", term, err)
			}
			if len(tokens) == 0 {
				continue
			}
			node := m.root
			for _, t := range tokens {
				key := lower.String(t.Text)
				if node.next == nil {
					node.next = make(map[string]*trieNode)
				}
				child, ok := node.next[key]
				if !ok {
					child = &trieNode{}
					node.next[key] = child
				}
				node = child
			}
			node.addType(typ)
			if len(tokens) > m.maxWords {
				m.maxWords = len(tokens)
			}
			m.patterns++
		}
	}
	return m, nil
}

func (n *trieNode) addType(t Type) {
	i := sort.Search(len(n.types), func(i int) bool { return n.types[i] >= t })
	if i < len(n.types) && n.types[i] == t {
		return
	}
	n.types = append(n.types, 0)
	copy(n.types[i+1:], n.types[i:])
	n.types[i] = t
}

// Patterns returns the number of phrases added.
func (m *PhraseMatcher) Patterns() int { return m.patterns }

// Match returns every phrase occurrence in tokens, including overlapping
// and nested ones, ordered by start token, then end token, then type.
func (m *PhraseMatcher) Match(tokens []oracle.Token) []Match {
	if len(tokens) == 0 || m.patterns == 0 {
		return nil
	}
	lower := cases.Lower(language.Und)
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = lower.String(t.Text)
	}

	var out []Match
	for start := range keys {
		node := m.root
		for end := start; end < len(keys) && end-start < m.maxWords; end++ {
			next, ok := node.next[keys[end]]
			if !ok {
				break
			}
			node = next
			for _, typ := range node.types {
				out = append(out, Match{Start: start, End: end + 1, Type: typ})
			}
		}
	}
	return out
}
