// Package overlay keeps highlight decorations positioned over a plain-text
// document. Offsets are rune indexes with an exclusive end.
package overlay

import (
	"strings"
	"unicode"
)

// Range is a half-open [Start, End) span of runes.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the width of the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// FindOccurrences returns every non-overlapping, case-insensitive match of
// needle in content, left to right. The needle is trimmed first; an empty or
// absent needle yields an empty slice.
func FindOccurrences(content, needle string) []Range {
	ranges := []Range{}
	needle = strings.TrimSpace(needle)
	if needle == "" || content == "" {
		return ranges
	}

	haystack := foldRunes([]rune(content))
	pattern := foldRunes([]rune(needle))
	for from := 0; from+len(pattern) <= len(haystack); {
		at := indexRunes(haystack[from:], pattern)
		if at < 0 {
			break
		}
		start := from + at
		end := start + len(pattern)
		ranges = append(ranges, Range{Start: start, End: end})
		from = end
	}
	return ranges
}

// FirstOccurrence returns the leftmost match of needle, if any.
func FirstOccurrence(content, needle string) (Range, bool) {
	found := FindOccurrences(content, needle)
	if len(found) == 0 {
		return Range{}, false
	}
	return found[0], true
}

// foldRunes lower-cases rune by rune so the result has the same length as
// the input and indexes stay valid for the original text.
func foldRunes(in []rune) []rune {
	out := make([]rune, len(in))
	for i, r := range in {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i] != needle[0] {
			continue
		}
		for j := 1; j < len(needle); j++ {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
