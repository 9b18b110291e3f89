// Package tokenizer splits sentences into words with byte offsets, flags
// stop-words, and applies a simple suffix-based stemmer.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is one word of the input. Start and End are byte offsets into the
// original text; Lower and Stem are normalised forms.
type Token struct {
	Text  string
	Lower string
	Stem  string
	Start int
	End   int
	Stop  bool
}

// Tokenize returns every word in text in order. A word is a maximal run of
// letters, digits, and inner apostrophes.
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/5)
	start := -1
	for i, r := range text {
		if isWordRune(r) || (r == '\'' && start >= 0 && nextIsLetter(text, i+1)) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, newToken(text[start:i], start))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(text[start:], start))
	}
	return tokens
}

// IsStopWord reports whether the lower-cased word is a stop-word.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

func newToken(word string, start int) Token {
	lower := strings.ToLower(word)
	_, stop := stopWords[lower]
	return Token{
		Text:  word,
		Lower: lower,
		Stem:  Stem(lower),
		Start: start,
		End:   start + len(word),
		Stop:  stop,
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func nextIsLetter(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r)
}

var suffixes = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// Stem applies a suffix-stripping stemmer to a lower-cased word. The first
// matching suffix whose remainder is long enough wins.
func Stem(word string) string {
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
