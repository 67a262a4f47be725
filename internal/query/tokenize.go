// Package query implements the combined lexical + tag + TF-IDF-style
// ranking described in spec §4.5, plus the write-time similarity scoring
// that the storage and relationship layers use for deduplication.
package query

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var english = stopwords.MustGet("en")

// Tokenize lowercases, splits on non-alphanumeric runs, and drops length-1
// tokens, per spec §4.5 step 1. It keeps stopwords: ranking, TF-IDF
// weighting, deduplication and the aging engine's information-density factor
// all work on this full token stream. TokenizeSignificant is the
// stopword-free variant.
func Tokenize(s string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 1 {
			tokens = append(tokens, b.String())
		}
		b.Reset()
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// TokenizeSignificant tokenizes and drops English stopwords. Its one caller
// is the aging engine's contextual-relevance overlap, so that filler words
// don't dilute that score.
func TokenizeSignificant(s string) []string {
	tokens := Tokenize(s)
	out := tokens[:0:0]
	for _, t := range tokens {
		if english.Contains(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TermFrequencies builds a term -> occurrence-count map from already
// tokenized text, used both for the inverted index (storage) and for TF-IDF
// scoring (this package).
func TermFrequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}
