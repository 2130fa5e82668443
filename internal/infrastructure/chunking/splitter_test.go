package chunking

import (
	"strings"
	"testing"
)

func TestSplitEmptyText(t *testing.T) {
	if chunks := NewSplitter(100, 10).Split(""); chunks != nil {
		t.Fatalf("expected nil for empty text, got %v", chunks)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks := NewSplitter(100, 10).Split("short procedure text")
	if len(chunks) != 1 || chunks[0] != "short procedure text" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitOverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("word ", 100)
	splitter := NewSplitter(100, 30)
	chunks := splitter.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// The tail of each chunk must reappear at the head of the next one.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-10:]
		if !strings.Contains(chunks[i+1], strings.TrimSpace(tail)) {
			t.Fatalf("chunk %d tail %q not found in next chunk", i, tail)
		}
	}
}

func TestSplitPrefersWordBoundaries(t *testing.T) {
	text := strings.Repeat("safety harness inspection ", 50)
	chunks := NewSplitter(120, 20).Split(text)
	for i, chunk := range chunks {
		if strings.HasSuffix(chunk, "harnes") || strings.HasSuffix(chunk, "inspectio") {
			t.Fatalf("chunk %d cut mid-word: %q", i, chunk[len(chunk)-15:])
		}
	}
}

func TestSplitNoWhitespaceStillProgresses(t *testing.T) {
	text := strings.Repeat("x", 500)
	chunks := NewSplitter(100, 10).Split(text)
	if len(chunks) < 5 {
		t.Fatalf("expected forced mid-word cuts, got %d chunks", len(chunks))
	}
}
