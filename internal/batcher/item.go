// Package batcher amortises expensive per-sentence analysis calls over a
// shared engine. Requests are resolved from a process-wide result store when
// possible; the rest are coalesced into bounded batches, topped up with
// neighbouring sentences from the caller's document, and sent to the engine
// one batch at a time per Batcher.
package batcher

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxItemLength is the rune count above which a sentence is never sent
// to the engine.
const DefaultMaxItemLength = 1000

// Range is a half-open byte range [Start, End) inside an Item's text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Item is one sentence plus the ranges inside it the engine must ignore.
// Items are immutable values and compare equal when their text and
// exclusion set are equal, so they can be used directly as map keys.
type Item struct {
	Text string

	// exclusions is the canonical encoding of the exclusion set, kept as a
	// string so Item stays comparable.
	exclusions string
}

// NewItem builds an Item. Exclusions are clipped to the text, sorted, and
// merged so that equal sets always produce equal Items.
func NewItem(text string, exclusions ...Range) Item {
	return Item{Text: text, exclusions: encodeRanges(normalizeRanges(exclusions, len(text)))}
}

// Exclusions returns the normalised exclusion ranges.
func (i Item) Exclusions() []Range {
	if i.exclusions == "" {
		return nil
	}
	parts := strings.Split(i.exclusions, ";")
	ranges := make([]Range, 0, len(parts))
	for _, p := range parts {
		start, end, ok := strings.Cut(p, ":")
		if !ok {
			continue
		}
		s, err1 := strconv.Atoi(start)
		e, err2 := strconv.Atoi(end)
		if err1 != nil || err2 != nil {
			continue
		}
		ranges = append(ranges, Range{Start: s, End: e})
	}
	return ranges
}

// Key returns a stable content hash usable as an external cache key.
func (i Item) Key() string {
	hash := sha256.Sum256([]byte(i.Text + "\x00" + i.exclusions))
	return fmt.Sprintf("%x", hash[:16])
}

func (i Item) String() string {
	if i.exclusions == "" {
		return strconv.Quote(i.Text)
	}
	return fmt.Sprintf("%q excl[%s]", i.Text, i.exclusions)
}

// Rules holds the cheap local checks that classify an Item as trivial.
type Rules struct {
	MaxLength int
}

// Trivial reports whether item resolves to the null result without ever
// reaching the engine: empty, longer than MaxLength runes, or without a
// single letter.
func (r Rules) Trivial(item Item) bool {
	if item.Text == "" {
		return true
	}
	maxLen := r.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxItemLength
	}
	if utf8.RuneCountInString(item.Text) > maxLen {
		return true
	}
	return strings.IndexFunc(item.Text, unicode.IsLetter) < 0
}

func normalizeRanges(ranges []Range, limit int) []Range {
	valid := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Start < 0 {
			r.Start = 0
		}
		if r.End > limit {
			r.End = limit
		}
		if r.Start >= r.End {
			continue
		}
		valid = append(valid, r)
	}
	sort.Slice(valid, func(a, b int) bool {
		if valid[a].Start != valid[b].Start {
			return valid[a].Start < valid[b].Start
		}
		return valid[a].End < valid[b].End
	})
	merged := valid[:0]
	for _, r := range valid {
		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func encodeRanges(ranges []Range) string {
	if len(ranges) == 0 {
		return ""
	}
	var b strings.Builder
	for idx, r := range ranges {
		if idx > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Itoa(r.Start))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r.End))
	}
	return b.String()
}
