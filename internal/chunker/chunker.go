package chunker

import (
	"strings"
	"unicode/utf8"
)

// Segment is one bounded slice of a document's text. Content is an exact
// substring of the source: concatenating each segment's content minus its
// Overlap prefix, in Index order, reproduces the source text.
type Segment struct {
	Index    int
	Content  string
	Start    int // byte offset of Content in the source text
	End      int // byte offset one past the end of Content
	Overlap  int // bytes repeated from the previous segment
	Keywords []string
}

// Chunker splits text into overlap-aware segments packed up to a target
// size, preferring sentence and paragraph boundaries.
type Chunker struct {
	targetSize int
	overlap    int
}

func New(targetSize, overlap int) *Chunker {
	if targetSize <= 0 {
		targetSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize / 4
	}
	return &Chunker{targetSize: targetSize, overlap: overlap}
}

// Split chunks text into segments. Empty input yields no segments.
func (c *Chunker) Split(text string) []Segment {
	if text == "" {
		return nil
	}

	if len(text) <= c.targetSize {
		return []Segment{{
			Index:    0,
			Content:  text,
			Start:    0,
			End:      len(text),
			Keywords: extractKeywords(text, 5),
		}}
	}

	var segments []Segment
	start := 0
	prevEnd := 0

	for start < len(text) {
		end := start + c.targetSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.boundary(text, start, end)
			// A soft boundary can land inside the previous segment's
			// overlap when the overlap is large. Every cut must end
			// strictly past the previous segment, or the recorded overlap
			// would exceed the segment's own length.
			if end <= prevEnd {
				end = alignRune(text, start+c.targetSize)
			}
			if end <= prevEnd {
				_, w := utf8.DecodeRuneInString(text[prevEnd:])
				end = prevEnd + w
			}
		}

		overlap := 0
		if len(segments) > 0 && prevEnd > start {
			overlap = prevEnd - start
		}

		content := text[start:end]
		segments = append(segments, Segment{
			Index:    len(segments),
			Content:  content,
			Start:    start,
			End:      end,
			Overlap:  overlap,
			Keywords: extractKeywords(content, 5),
		})

		if end >= len(text) {
			break
		}

		prevEnd = end
		next := alignRune(text, end-c.overlap)
		if next <= start {
			_, w := utf8.DecodeRuneInString(text[start:])
			next = start + w
		}
		start = next
	}

	return segments
}

// boundary picks a cut point at or before end, preferring a sentence end,
// then a paragraph break, then a rune-aligned hard cut.
func (c *Chunker) boundary(text string, start, end int) int {
	window := text[start:end]

	// Sentence boundary in the last 30% of the window.
	if i := strings.LastIndexAny(window, ".!?"); i > 0 && i >= int(float64(len(window))*0.7) {
		return start + i + 1
	}

	// Paragraph break in the last half of the window.
	if i := strings.LastIndex(window, "\n\n"); i > 0 && i >= len(window)/2 {
		return start + i + 2
	}

	return alignRune(text, end)
}

// Reconstruct joins segments back into the source text by dropping each
// segment's overlap prefix.
func Reconstruct(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Content[seg.Overlap:])
	}
	return b.String()
}

// alignRune moves pos backward to the nearest UTF-8 rune start.
func alignRune(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
	"it": true, "this": true, "that": true, "be": true, "as": true,
}

// extractKeywords returns up to limit frequent non-stop-words, used as the
// keyword-boost signal during retrieval.
func extractKeywords(text string, limit int) []string {
	words := strings.Fields(strings.ToLower(text))

	wordFreq := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?()[]{}\"'")
		if len(word) > 2 && !stopWords[word] {
			wordFreq[word]++
		}
	}

	keywords := make([]string, 0, limit)
	for word, freq := range wordFreq {
		if freq >= 2 && len(keywords) < limit {
			keywords = append(keywords, word)
		}
	}

	return keywords
}
