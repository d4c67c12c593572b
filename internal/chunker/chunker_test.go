package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitEmpty(t *testing.T) {
	c := New(100, 20)
	if segments := c.Split(""); segments != nil {
		t.Fatalf("empty text should yield no segments, got %d", len(segments))
	}
}

func TestSplitSingleSegment(t *testing.T) {
	c := New(100, 20)
	text := "A short note that fits in one chunk."
	segments := c.Split(text)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	s := segments[0]
	if s.Content != text || s.Start != 0 || s.End != len(text) || s.Overlap != 0 {
		t.Errorf("unexpected segment: %+v", s)
	}
}

func TestSplitRespectsTargetSize(t *testing.T) {
	c := New(100, 20)
	text := strings.Repeat("Sentences keep arriving without pause here. ", 30)
	segments := c.Split(text)
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}
	for i, s := range segments {
		if len(s.Content) > 100 {
			t.Errorf("segment %d exceeds target size: %d bytes", i, len(s.Content))
		}
		if s.Index != i {
			t.Errorf("segment %d has index %d", i, s.Index)
		}
		if text[s.Start:s.End] != s.Content {
			t.Errorf("segment %d content is not an exact source slice", i)
		}
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	c := New(50, 10)
	// A period falls in the last 30% of the first 50-byte window.
	text := "This sentence runs for a while and stops. The next one keeps going for quite some time after that."
	segments := c.Split(text)
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}
	if !strings.HasSuffix(segments[0].Content, ".") {
		t.Errorf("first segment should end at a sentence boundary, got %q", segments[0].Content)
	}
}

func TestReconstructIsLossless(t *testing.T) {
	cases := []string{
		strings.Repeat("Order is preserved across every cut point made here. ", 40),
		"Short.",
		strings.Repeat("No sentence ends anywhere in this run of text ", 50),
		"Paragraph one with some content.\n\nParagraph two with more content.\n\n" +
			strings.Repeat("Further prose continuing onward through the document body. ", 20),
	}
	for _, text := range cases {
		for _, overlap := range []int{0, 20, 100} {
			c := New(120, overlap)
			got := Reconstruct(c.Split(text))
			if got != text {
				t.Errorf("reconstruction differs (overlap=%d, len=%d)", overlap, len(text))
			}
		}
	}
}

func TestSplitOverlapRecorded(t *testing.T) {
	c := New(100, 25)
	text := strings.Repeat("Overlap windows connect neighboring segments cleanly. ", 20)
	segments := c.Split(text)
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}
	if segments[0].Overlap != 0 {
		t.Errorf("first segment must have zero overlap, got %d", segments[0].Overlap)
	}
	for i := 1; i < len(segments); i++ {
		s := segments[i]
		if s.Overlap <= 0 {
			t.Errorf("segment %d has no overlap", i)
			continue
		}
		prev := segments[i-1]
		if s.Start+s.Overlap != prev.End {
			t.Errorf("segment %d overlap accounting wrong: start=%d overlap=%d prev end=%d",
				i, s.Start, s.Overlap, prev.End)
		}
	}
}

func TestSplitNeverCutsRunes(t *testing.T) {
	c := New(50, 10)
	text := strings.Repeat("héllo wörld ünïcode cøntent ", 30)
	for i, s := range c.Split(text) {
		if !utf8.ValidString(s.Content) {
			t.Errorf("segment %d contains a split rune", i)
		}
	}
	if got := Reconstruct(c.Split(text)); got != text {
		t.Error("multibyte reconstruction differs")
	}
}

func TestSplitTinyTargetMakesProgress(t *testing.T) {
	// Overlap larger than target gets clamped; the walk must still
	// terminate and stay lossless.
	c := New(10, 50)
	text := strings.Repeat("abcdefghij", 20)
	segments := c.Split(text)
	if len(segments) == 0 {
		t.Fatal("expected segments")
	}
	if got := Reconstruct(segments); got != text {
		t.Error("reconstruction differs under clamped overlap")
	}
}

func TestSplitLargeOverlapStaysLossless(t *testing.T) {
	// Overlap above half the target size lets a sentence or paragraph
	// boundary fall inside the previous segment's overlap region. Every
	// cut must still advance past the previous segment's end.
	c := New(58, 40)
	text := strings.Repeat("Short bursts. More words follow here. Then a stop.\n\nNext block. ", 20)
	segments := c.Split(text)
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}

	prevEnd := 0
	for i, s := range segments {
		if i > 0 && s.End <= prevEnd {
			t.Fatalf("segment %d end %d does not advance past previous end %d", i, s.End, prevEnd)
		}
		if s.Overlap > len(s.Content) {
			t.Fatalf("segment %d overlap %d exceeds content length %d", i, s.Overlap, len(s.Content))
		}
		prevEnd = s.End
	}
	if got := Reconstruct(segments); got != text {
		t.Error("reconstruction altered the text")
	}
}

func TestSplitSingleByteTargetIsLossless(t *testing.T) {
	c := New(1, 0)
	text := "ab. cené" // multibyte rune wider than the target
	segments := c.Split(text)
	for i, s := range segments {
		if s.Overlap > len(s.Content) {
			t.Fatalf("segment %d overlap %d exceeds content length %d", i, s.Overlap, len(s.Content))
		}
	}
	if got := Reconstruct(segments); got != text {
		t.Errorf("reconstruction altered the text: %q != %q", got, text)
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "kubernetes cluster deployment kubernetes cluster scaling kubernetes"
	keywords := extractKeywords(text, 5)
	found := map[string]bool{}
	for _, k := range keywords {
		found[k] = true
	}
	if !found["kubernetes"] || !found["cluster"] {
		t.Errorf("expected repeated terms as keywords, got %v", keywords)
	}
	for _, k := range keywords {
		if stopWords[k] {
			t.Errorf("stop word %q leaked into keywords", k)
		}
	}

	if kws := extractKeywords("each word appears once only here", 5); len(kws) != 0 {
		t.Errorf("single-occurrence words should not be keywords, got %v", kws)
	}
}
