// Package overlap provides the lexical similarity measure shared by the
// refinement quality gates and fallback placement. It is deliberately
// simple: token overlap, no embeddings.
package overlap

import "strings"

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"this": true, "that": true, "it": true, "its": true, "i": true,
}

// Tokens returns the significant lowercase words of text, deduplicated
func Tokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) < 2 || stopWords[word] {
			continue
		}
		tokens[word] = true
	}
	return tokens
}

// Ratio returns the share of the original's significant tokens that also
// appear in other. An original with no significant tokens matches anything.
func Ratio(original, other string) float64 {
	origTokens := Tokens(original)
	if len(origTokens) == 0 {
		return 1.0
	}

	otherTokens := Tokens(other)
	shared := 0
	for token := range origTokens {
		if otherTokens[token] {
			shared++
		}
	}
	return float64(shared) / float64(len(origTokens))
}

// Score counts the tokens of text found in candidate, used to rank fallback
// targets where a ratio would punish long candidates
func Score(text, candidate string) int {
	textTokens := Tokens(text)
	candidateTokens := Tokens(candidate)
	shared := 0
	for token := range textTokens {
		if candidateTokens[token] {
			shared++
		}
	}
	return shared
}
