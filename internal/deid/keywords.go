package deid

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultClinicalKeywords are never masked, whatever the oracle says.
var DefaultClinicalKeywords = []string{"fever", "cough", "diabetes", "cancer", "headache", "asthma"}

// KeywordSet is a whitelist of lower-case terms exempt from masking.
type KeywordSet interface {
	Contains(term string) bool
}

// StaticKeywords is an immutable KeywordSet.
type StaticKeywords map[string]struct{}

// NewStaticKeywords builds a set from terms; terms are lower-cased.
func NewStaticKeywords(terms ...string) StaticKeywords {
	s := make(StaticKeywords, len(terms))
	for _, t := range terms {
		if t != "" {
			s[Lower(t)] = struct{}{}
		}
	}
	return s
}

// Contains implements KeywordSet. term must already be lower-case.
func (s StaticKeywords) Contains(term string) bool {
	_, ok := s[term]
	return ok
}

// Union returns a KeywordSet containing a term when any of sets does.
func Union(sets ...KeywordSet) KeywordSet { return union(sets) }

type union []KeywordSet

func (u union) Contains(term string) bool {
	for _, s := range u {
		if s != nil && s.Contains(term) {
			return true
		}
	}
	return false
}

// Lower lower-cases s with Unicode rules. A Caser is not safe for
// concurrent use, so one is made per call.
func Lower(s string) string {
	return cases.Lower(language.Und).String(s)
}
