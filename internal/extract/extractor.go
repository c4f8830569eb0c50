// Package extract finds clinical entities (diseases, medications, symptoms,
// lab tests, procedures) in text by dictionary phrase matching.
//
// Text is split by the oracle's tokenizer and matched against curated term
// lists without regard to case. A surface that appears under two types
// yields one row per type; identical (start, end, type) rows are collapsed.
package extract

import (
	"context"
	"fmt"

	"clinical-deid/internal/oracle"
)

// Entity is one extracted row. Start and End are character offsets into the
// text passed to Extract.
type Entity struct {
	Text  string `json:"entity"`
	Type  Type   `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Extractor runs phrase matching over tokenized text.
type Extractor struct {
	tok     oracle.Tokenizer
	matcher *PhraseMatcher
}

// NewExtractor builds the phrase matcher for terms using tok.
func NewExtractor(ctx context.Context, tok oracle.Tokenizer, terms Terms) (*Extractor, error) {
	m, err := NewPhraseMatcher(ctx, tok, terms)
	if err != nil {
		return nil, err
	}
	return &Extractor{tok: tok, matcher: m}, nil
}

// Patterns returns the number of phrases the matcher holds.
func (e *Extractor) Patterns() int { return e.matcher.Patterns() }

// Extract returns the entity rows found in text. The result is never nil;
// text without matches gives an empty slice.
func (e *Extractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	entities := []Entity{}
	if text == "" {
		return entities, nil
	}
	tokens, err := e.tok.Tokenize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	type key struct {
		start, end int
		typ        Type
	}
	seen := make(map[key]struct{})
	ri := oracle.NewRuneIndex(text)
	for _, m := range e.matcher.Match(tokens) {
		startByte, endByte := tokens[m.Start].Start, tokens[m.End-1].End
		k := key{startByte, endByte, m.Type}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		entities = append(entities, Entity{
			Text:  text[startByte:endByte],
			Type:  m.Type,
			Start: ri.RuneOffset(startByte),
			End:   ri.RuneOffset(endByte),
		})
	}
	return entities, nil
}
