// Package text tokenizes resumes and job postings for the lexical rankers
// and extracts auxiliary signals such as years of experience.
package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTokenRunes drops single-character fragments such as "a" or "c".
const minTokenRunes = 2

// Tokenize lowercases s and splits it on every rune that is not a letter,
// a digit or an underscore. Tokens shorter than two runes are dropped. Stop words are
// kept; callers that want them gone use RemoveStopWords.
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTokenRunes {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
