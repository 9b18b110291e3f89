// Package local is the in-process reference analysis engine. It tokenises
// each sentence, skips excluded ranges, and reports simple style findings.
package local

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/text/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/proto"
)

// Rule names reported in findings.
const (
	RuleCapitalization = "capitalization"
	RuleRepeatedWord   = "repeated-word"
	RuleLongSentence   = "long-sentence"
	RuleFiller         = "filler-word"
)

// DefaultLongSentenceWords is the word count above which a sentence is
// reported as long.
const DefaultLongSentenceWords = 40

var fillerWords = map[string]struct{}{
	"very": {}, "really": {}, "actually": {}, "basically": {},
	"literally": {}, "just": {}, "quite": {}, "simply": {},
}

// Analyzer implements batcher.Engine for proto.Analysis results.
type Analyzer struct {
	name              string
	languages         []string
	longSentenceWords int
	logger            *slog.Logger
}

// New creates an Analyzer. Only English rules are implemented; the
// language list is what the engine advertises.
func New(name string) *Analyzer {
	if name == "" {
		name = "local"
	}
	return &Analyzer{
		name:              name,
		languages:         []string{"en"},
		longSentenceWords: DefaultLongSentenceWords,
		logger:            slog.Default().With("component", "local-engine"),
	}
}

// Name returns the engine name.
func (a *Analyzer) Name() string { return a.name }

// Parse analyses every item. Items without a single analysable word are
// left out of the result.
func (a *Analyzer) Parse(ctx context.Context, items []batcher.Item) (map[batcher.Item]proto.Analysis, error) {
	out := make(map[batcher.Item]proto.Analysis, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res := a.Analyze(item.Text, item.Exclusions()); res != nil {
			out[item] = *res
		}
	}
	a.logger.Debug("parsed batch", "items", len(items), "results", len(out))
	return out, nil
}

// Analyze runs every rule over one sentence. It returns nil when no word
// lies outside the exclusions.
func (a *Analyzer) Analyze(text string, exclusions []batcher.Range) *proto.Analysis {
	all := tokenizer.Tokenize(text)
	tokens := make([]tokenizer.Token, 0, len(all))
	for _, tok := range all {
		if !overlaps(tok.Start, tok.End, exclusions) {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	res := &proto.Analysis{
		Tokens:    make([]proto.Token, len(tokens)),
		WordCount: len(tokens),
	}
	stops := 0
	for i, tok := range tokens {
		res.Tokens[i] = proto.Token{Text: tok.Text, Stem: tok.Stem, Start: tok.Start, End: tok.End}
		if tok.Stop {
			stops++
		}
	}
	res.StopWordRatio = float64(stops) / float64(len(tokens))

	first := tokens[0]
	if r, _ := utf8.DecodeRuneInString(first.Text); unicode.IsLower(r) && first.Start == leadingOffset(text) {
		res.Findings = append(res.Findings, proto.Finding{
			Rule:    RuleCapitalization,
			Message: "sentence should start with a capital letter",
			Start:   first.Start,
			End:     first.End,
		})
	}
	for i := 1; i < len(tokens); i++ {
		prev, cur := tokens[i-1], tokens[i]
		if prev.Lower == cur.Lower && strings.TrimSpace(text[prev.End:cur.Start]) == "" {
			res.Findings = append(res.Findings, proto.Finding{
				Rule:    RuleRepeatedWord,
				Message: "repeated word \"" + cur.Text + "\"",
				Start:   prev.Start,
				End:     cur.End,
			})
		}
	}
	for _, tok := range tokens {
		if _, ok := fillerWords[tok.Lower]; ok {
			res.Findings = append(res.Findings, proto.Finding{
				Rule:    RuleFiller,
				Message: "consider removing \"" + tok.Text + "\"",
				Start:   tok.Start,
				End:     tok.End,
			})
		}
	}
	if len(tokens) > a.longSentenceWords {
		res.Findings = append(res.Findings, proto.Finding{
			Rule:    RuleLongSentence,
			Message: "sentence is long; consider splitting it",
			Start:   0,
			End:     len(text),
		})
	}
	return res
}

// leadingOffset returns the byte offset of the first letter or digit, so
// sentences opening with a quote or bracket are still checked.
func leadingOffset(text string) int {
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
}

func overlaps(start, end int, ranges []batcher.Range) bool {
	for _, r := range ranges {
		if start < r.End && end > r.Start {
			return true
		}
	}
	return false
}
