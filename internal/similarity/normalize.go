package similarity

import (
	"strings"
	"unicode"
)

// PhraseLength is the width of the sliding word window used for exact matching
const PhraseLength = 5

// Normalize lowercases text, strips everything except ASCII word characters
// and whitespace, and collapses whitespace runs into single spaces
func Normalize(text string) string {
	lowered := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case isWordChar(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isWordChar(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// Phrases returns every contiguous window of PhraseLength words, in order.
// Text shorter than PhraseLength words yields no phrases.
func Phrases(normalized string) []string {
	words := strings.Fields(normalized)
	if len(words) < PhraseLength {
		return nil
	}

	phrases := make([]string, 0, len(words)-PhraseLength+1)
	for i := 0; i+PhraseLength <= len(words); i++ {
		phrases = append(phrases, strings.Join(words[i:i+PhraseLength], " "))
	}
	return phrases
}

// wordSet returns the unique words of a normalized string
func wordSet(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
