// Package splitter breaks a text blob into sentences for analysis. Inline
// code spans and URLs are kept inside their sentence but recorded as
// exclusion ranges; fenced code blocks are dropped entirely.
package splitter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
)

// Sentence is one sentence of the input. Offset is the byte position of
// Text in the original content. Exclusions are relative to Text.
type Sentence struct {
	Text       string
	Offset     int
	Exclusions []batcher.Range
}

// Item converts the sentence into a batcher Item.
func (s Sentence) Item() batcher.Item {
	return batcher.NewItem(s.Text, s.Exclusions...)
}

var (
	urlPattern        = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
	inlineCodePattern = regexp.MustCompile("`[^`\n]+`")
)

var abbreviations = map[string]struct{}{
	"e.g": {}, "i.e": {}, "etc": {}, "vs": {}, "mr": {}, "mrs": {},
	"ms": {}, "dr": {}, "prof": {}, "st": {}, "jr": {}, "sr": {},
	"no": {}, "fig": {}, "approx": {}, "cf": {},
}

// Split returns the sentences of content in document order. Whitespace
// around sentences is trimmed and line breaks inside a sentence become
// spaces, so offsets stay valid.
func Split(content string) []Sentence {
	protected := protectedSpans(content)
	var out []Sentence
	for _, block := range blocks(content) {
		out = append(out, splitBlock(content, block, protected)...)
	}
	return out
}

// Items splits content and returns one Item per sentence.
func Items(content string) []batcher.Item {
	sentences := Split(content)
	items := make([]batcher.Item, len(sentences))
	for i, s := range sentences {
		items[i] = s.Item()
	}
	return items
}

type span struct{ start, end int }

func protectedSpans(content string) []span {
	var spans []span
	for _, m := range inlineCodePattern.FindAllStringIndex(content, -1) {
		spans = append(spans, span{m[0], m[1]})
	}
	for _, m := range urlPattern.FindAllStringIndex(content, -1) {
		end := m[1]
		// trailing sentence punctuation belongs to the sentence
		for end > m[0] && strings.ContainsRune(".,;:!?", rune(content[end-1])) {
			end--
		}
		if !inside(spans, m[0]) {
			spans = append(spans, span{m[0], end})
		}
	}
	return spans
}

func inside(spans []span, pos int) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}

// blocks returns paragraph ranges separated by blank lines, skipping fenced
// code blocks.
func blocks(content string) []span {
	var out []span
	start := -1
	fenced := false
	pos := 0
	for pos <= len(content) {
		nl := strings.IndexByte(content[pos:], '\n')
		lineEnd := len(content)
		if nl >= 0 {
			lineEnd = pos + nl
		}
		line := strings.TrimSpace(content[pos:lineEnd])
		switch {
		case strings.HasPrefix(line, "```"):
			if start >= 0 {
				out = append(out, span{start, pos})
				start = -1
			}
			fenced = !fenced
		case fenced:
		case line == "":
			if start >= 0 {
				out = append(out, span{start, pos})
				start = -1
			}
		default:
			if start < 0 {
				start = pos
			}
		}
		if nl < 0 {
			break
		}
		pos = lineEnd + 1
	}
	if start >= 0 && !fenced {
		out = append(out, span{start, len(content)})
	}
	return out
}

func splitBlock(content string, block span, protected []span) []Sentence {
	var out []Sentence
	start := block.start
	i := block.start
	for i < block.end {
		r, size := utf8.DecodeRuneInString(content[i:])
		if !isTerminator(r) || inside(protected, i) {
			i += size
			continue
		}
		end := i + size
		for end < block.end {
			next, n := utf8.DecodeRuneInString(content[end:])
			if !isTerminator(next) && !isCloser(next) {
				break
			}
			end += n
		}
		if end < block.end {
			next, _ := utf8.DecodeRuneInString(content[end:])
			if !unicode.IsSpace(next) {
				i = end
				continue
			}
		}
		if r == '.' && isAbbreviation(content[start:i]) {
			i = end
			continue
		}
		if s, ok := makeSentence(content, start, end, protected); ok {
			out = append(out, s)
		}
		start = end
		i = end
	}
	if s, ok := makeSentence(content, start, block.end, protected); ok {
		out = append(out, s)
	}
	return out
}

func makeSentence(content string, start, end int, protected []span) (Sentence, bool) {
	raw := content[start:end]
	trimmedLeft := strings.TrimLeftFunc(raw, unicode.IsSpace)
	start += len(raw) - len(trimmedLeft)
	text := strings.TrimRightFunc(trimmedLeft, unicode.IsSpace)
	if text == "" {
		return Sentence{}, false
	}
	end = start + len(text)
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, text)

	var excl []batcher.Range
	for _, p := range protected {
		if p.end <= start || p.start >= end {
			continue
		}
		excl = append(excl, batcher.Range{
			Start: max(p.start, start) - start,
			End:   min(p.end, end) - start,
		})
	}
	return Sentence{Text: text, Offset: start, Exclusions: excl}, true
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

// isAbbreviation reports whether the sentence-so-far ends in a known
// abbreviation or a single capital initial.
func isAbbreviation(prefix string) bool {
	word := prefix
	if idx := strings.LastIndexFunc(prefix, func(r rune) bool {
		return unicode.IsSpace(r) || r == '('
	}); idx >= 0 {
		_, size := utf8.DecodeRuneInString(prefix[idx:])
		word = prefix[idx+size:]
	}
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		return unicode.IsUpper(r)
	}
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}
