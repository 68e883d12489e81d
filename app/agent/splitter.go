package agent

import "unicode/utf8"

const (
	DefaultMaxSegmentSize = 8000

	paragraphLookback = 500
	lineLookback      = 200
	sentenceLookback  = 100
)

// Segment is a contiguous slice of the source text.
type Segment struct {
	Index int
	Text  string
	Total int
}

func (s Segment) IsFirst() bool { return s.Index == 0 }
func (s Segment) IsLast() bool  { return s.Index == s.Total-1 }

// Split cuts text into segments of at most maxSegmentSize characters, preferring
// paragraph, then line, then sentence boundaries near the end of each window.
// Joining the segment texts yields text unchanged.
func Split(text string, maxSegmentSize int) []Segment {
	if maxSegmentSize <= 0 {
		maxSegmentSize = DefaultMaxSegmentSize
	}

	runes, offsets := decode(text)
	if len(runes) < maxSegmentSize {
		return []Segment{{Index: 0, Text: text, Total: 1}}
	}

	var parts []string
	start := 0
	for start < len(runes) {
		end := min(start+maxSegmentSize, len(runes))
		if end < len(runes) {
			end = breakPoint(runes, start, end)
		}
		// slice the original bytes; invalid UTF-8 must survive untouched
		parts = append(parts, text[offsets[start]:offsets[end]])
		start = end
	}

	segments := make([]Segment, len(parts))
	for i, p := range parts {
		segments[i] = Segment{Index: i, Text: p, Total: len(parts)}
	}
	return segments
}

// decode returns the characters of text and the byte offset where each one starts,
// plus a final entry for len(text). An invalid byte counts as one character.
func decode(text string) ([]rune, []int) {
	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		runes = append(runes, r)
		offsets = append(offsets, i)
		i += size
	}
	return runes, append(offsets, len(text))
}

// breakPoint picks where the window [start, end) should really end.
func breakPoint(runes []rune, start, end int) int {
	if p := lastIndex(runes, []rune("\n\n"), end, max(start, end-paragraphLookback)); p >= 0 {
		return p
	}
	if p := lastIndex(runes, []rune("\n"), end, max(start, end-lineLookback)); p >= 0 {
		return p
	}
	// The period stays with its sentence, so it must sit inside the window.
	if p := lastIndex(runes, []rune(". "), end-1, max(start, end-sentenceLookback)); p >= 0 {
		return p + 1
	}
	return end
}

// lastIndex returns the last position p with floor < p <= from at which sep starts, or -1.
func lastIndex(runes, sep []rune, from, floor int) int {
	if from > len(runes)-len(sep) {
		from = len(runes) - len(sep)
	}
	for i := from; i > floor; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
