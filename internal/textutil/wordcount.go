// Package textutil provides text measurement and normalization primitives
// shared across cleaning phases.
package textutil

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
)

// WordCount returns the number of words in text using Unicode word
// segmentation (UAX #29). A segment counts as a word when it contains at
// least one letter or digit, so punctuation and whitespace runs are skipped.
//
// This is the independent counter used to cross-check word counts reported
// by the AI transformation capabilities, so it must be deterministic and
// stable across scripts.
func WordCount(text string) int {
	if text == "" {
		return 0
	}

	count := 0
	tokens := words.FromString(text)
	for tokens.Next() {
		if isWordLike(tokens.Value()) {
			count++
		}
	}
	return count
}

func isWordLike(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// FieldsCount counts whitespace-separated fields. It is the cheap counter
// used by heuristics where exactness does not matter.
func FieldsCount(text string) int {
	return len(strings.Fields(text))
}

// NormalizeLine lowercases a line and collapses interior whitespace so that
// repeated page furniture (running headers, footers) compares equal across
// pages regardless of spacing.
func NormalizeLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ""
	}
	parts := strings.Fields(strings.ToLower(trimmed))
	return strings.Join(parts, " ")
}
