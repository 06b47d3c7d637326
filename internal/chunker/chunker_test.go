package chunker

import (
	"strings"
	"testing"
)

func repeatText(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("The quick brown fox jumps over the lazy dog. ")
	}
	return b.String()[:n]
}

func TestSplit_Example2500(t *testing.T) {
	text := repeatText(2500)

	chunks := Split(text, 1000, 100)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantLens := []int{1000, 1000, 700}
	for i, want := range wantLens {
		if got := len([]rune(chunks[i].Text)); got != want {
			t.Errorf("chunk %d: expected length %d, got %d", i, want, got)
		}
	}

	// Each chunk after the first starts with the last 100 characters of its
	// predecessor.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		tail := string(prev[len(prev)-100:])
		if !strings.HasPrefix(chunks[i].Text, tail) {
			t.Errorf("chunk %d does not begin with the overlap tail of chunk %d", i, i-1)
		}
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		textLen   int
		chunkSize int
		overlap   int
	}{
		{"no overlap", 3000, 1000, 0},
		{"default overlap", 2500, 1000, 100},
		{"max overlap", 5000, 500, 200},
		{"single chunk", 400, 1000, 100},
		{"exact multiple", 2000, 1000, 0},
		{"small tail", 2001, 2000, 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := repeatText(tc.textLen)
			chunks := Split(text, tc.chunkSize, tc.overlap)
			if got := Reassemble(chunks, tc.overlap); got != text {
				t.Errorf("round trip mismatch: got %d chars, want %d", len(got), len(text))
			}
		})
	}
}

func TestSplit_RoundTripUnicode(t *testing.T) {
	text := strings.Repeat("契約書の条項は厳密に解釈される。", 200)
	chunks := Split(text, 500, 50)
	if got := Reassemble(chunks, 50); got != text {
		t.Error("round trip mismatch for multi-byte text")
	}
	for _, ch := range chunks {
		if n := len([]rune(ch.Text)); n > 500 {
			t.Errorf("chunk %d exceeds size bound: %d runes", ch.Index, n)
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	if chunks := Split("", 1000, 100); chunks != nil {
		t.Errorf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestSplit_ClampsOverlap(t *testing.T) {
	// overlap >= chunkSize would never advance; the splitter must clamp it
	// and still terminate.
	text := repeatText(1500)
	chunks := Split(text, 500, 500)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	last := chunks[len(chunks)-1]
	if last.EndOffset != 1500 {
		t.Errorf("expected final chunk to reach end of text, got %d", last.EndOffset)
	}
}

func TestSplit_Offsets(t *testing.T) {
	text := repeatText(2500)
	chunks := Split(text, 1000, 100)

	runes := []rune(text)
	for _, ch := range chunks {
		if got := string(runes[ch.StartOffset:ch.EndOffset]); got != ch.Text {
			t.Errorf("chunk %d: offsets [%d,%d) do not match text", ch.Index, ch.StartOffset, ch.EndOffset)
		}
	}
}

func TestSplitPages_Completeness(t *testing.T) {
	cases := []struct {
		totalPages int
		numParts   int
	}{
		{10, 3}, {100, 7}, {5, 5}, {5, 10}, {1, 1}, {1, 4}, {17, 4}, {9, 2},
	}

	for _, tc := range cases {
		parts, err := SplitPages(tc.totalPages, tc.numParts)
		if err != nil {
			t.Fatalf("SplitPages(%d, %d): %v", tc.totalPages, tc.numParts, err)
		}

		seen := make(map[int]int)
		sum := 0
		for _, p := range parts {
			if p.Start >= p.End {
				t.Errorf("SplitPages(%d, %d): empty range emitted: %+v", tc.totalPages, tc.numParts, p)
			}
			sum += p.Pages()
			for page := p.Start; page < p.End; page++ {
				seen[page]++
			}
		}

		if sum != tc.totalPages {
			t.Errorf("SplitPages(%d, %d): page counts sum to %d", tc.totalPages, tc.numParts, sum)
		}
		for page := 0; page < tc.totalPages; page++ {
			if seen[page] != 1 {
				t.Errorf("SplitPages(%d, %d): page %d appears %d times", tc.totalPages, tc.numParts, page, seen[page])
			}
		}
	}
}

func TestSplitPages_Invalid(t *testing.T) {
	if _, err := SplitPages(10, 0); err == nil {
		t.Error("expected error for zero parts")
	}
	if _, err := SplitPages(-1, 2); err == nil {
		t.Error("expected error for negative pages")
	}
	parts, err := SplitPages(0, 3)
	if err != nil || parts != nil {
		t.Errorf("expected no parts for zero pages, got %v, %v", parts, err)
	}
}
