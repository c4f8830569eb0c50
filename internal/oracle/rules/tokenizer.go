package rules

import (
	"unicode"
	"unicode/utf8"

	"clinical-deid/internal/oracle"
)

// Tokenize splits s into word and punctuation tokens with byte offsets.
// Whitespace separates tokens and is never emitted.
//
// Rule priority (highest first):
//   - Letters and digits join into one word.
//   - A single hyphen between two letters/digits joins ("COVID-19", "X-ray").
//   - An apostrophe (U+0027, U+2019) between letters joins ("Alzheimer's").
//   - A period between two digits joins ("7.5").
//   - Every other non-space rune is its own token.
//
// The invariant s[t.Start:t.End] == t.Text holds for every token.
func Tokenize(s string) []oracle.Token {
	if s == "" {
		return nil
	}
	tokens := make([]oracle.Token, 0, len(s)/5+1)

	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])

		if unicode.IsSpace(r) {
			i += size
			continue
		}

		if isWordRune(r) {
			end := scanWord(s, i)
			tokens = append(tokens, oracle.Token{Text: s[i:end], Start: i, End: end})
			i = end
			continue
		}

		tokens = append(tokens, oracle.Token{Text: s[i : i+size], Start: i, End: i + size})
		i += size
	}
	return tokens
}

// scanWord returns the end offset of the word starting at pos.
func scanWord(s string, pos int) int {
	i := pos
	var prev rune
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if isWordRune(r) {
			prev = r
			i += size
			continue
		}
		if i+size >= len(s) {
			break
		}
		next, _ := utf8.DecodeRuneInString(s[i+size:])
		if joins(prev, r, next) {
			prev = r
			i += size
			continue
		}
		break
	}
	return i
}

// joins reports whether the connector r glues prev and next into one word.
func joins(prev, r, next rune) bool {
	switch r {
	case '-':
		return isWordRune(prev) && isWordRune(next)
	case '\'', '’':
		return unicode.IsLetter(prev) && unicode.IsLetter(next)
	case '.':
		return unicode.IsDigit(prev) && unicode.IsDigit(next)
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
