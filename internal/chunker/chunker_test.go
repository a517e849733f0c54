package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func mustNew(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	return c
}

func TestEmptyInput(t *testing.T) {
	c := mustNew(t, Config{ChunkSize: 100})
	if got := c.Split(""); len(got) != 0 {
		t.Fatalf("expected no chunks for empty input, got %v", got)
	}
	if got := c.Split("   \n\n  "); len(got) != 0 {
		t.Fatalf("expected no chunks for whitespace input, got %v", got)
	}
}

func TestSmallInputSingleChunk(t *testing.T) {
	c := mustNew(t, Config{ChunkSize: 100})
	got := c.Split("short text")
	if len(got) != 1 || got[0] != "short text" {
		t.Fatalf("expected single unchanged chunk, got %v", got)
	}
}

func TestInvalidChunkSize(t *testing.T) {
	if _, err := New(Config{ChunkSize: 0}); err == nil {
		t.Fatal("expected error for zero chunk_size")
	}
}

func TestOverlapClampDoesNotError(t *testing.T) {
	c := mustNew(t, Config{ChunkSize: 50, ChunkOverlap: 50})
	if c.chunkOverlap != 10 {
		t.Fatalf("expected overlap clamped to size/5=10, got %d", c.chunkOverlap)
	}
}

func TestRespectsChunkSize(t *testing.T) {
	c := mustNew(t, Config{ChunkSize: 40, ChunkOverlap: 0})
	text := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 20)
	for i, chunk := range c.Split(text) {
		if n := utf8.RuneCountInString(chunk); n > 40 {
			t.Fatalf("chunk %d exceeds size: %d runes: %q", i, n, chunk)
		}
	}
}

func TestOversizedUnsplittableFragment(t *testing.T) {
	// A single long word still gets cut at the character level.
	c := mustNew(t, Config{ChunkSize: 10, ChunkOverlap: 0})
	word := strings.Repeat("x", 35)
	got := c.Split(word)
	if len(got) != 4 {
		t.Fatalf("expected 4 pieces, got %d: %v", len(got), got)
	}
	joined := strings.Join(got, "")
	if joined != word {
		t.Fatalf("character split lost content: %q", joined)
	}
}

func TestDeterministic(t *testing.T) {
	c := mustNew(t, Config{ChunkSize: 60, ChunkOverlap: 12})
	text := strings.Repeat("one two three four five six seven eight nine ten.\n\n", 10)
	a := c.Split(text)
	b := c.Split(text)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same input produced different chunks:\n%v\n%v", a, b)
	}
}

func TestRechunkingOutputIsStableAtZeroOverlap(t *testing.T) {
	c := mustNew(t, Config{ChunkSize: 80, ChunkOverlap: 0})

	paras := []string{
		"The first paragraph talks about storage engines.",
		"The second paragraph covers write-ahead logging.",
		"The third paragraph is about compaction strategy.",
		"The fourth paragraph describes recovery paths.",
	}
	text := strings.Join(paras, "\n\n")

	first := c.Split(text)
	if len(first) < 2 {
		t.Fatalf("expected multiple chunks, got %v", first)
	}

	// Reassembling on the top separator and re-chunking reproduces the
	// original chunking exactly when there is no overlap.
	second := c.Split(strings.Join(first, "\n\n"))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-chunking changed output:\nfirst:  %v\nsecond: %v", first, second)
	}

	// Each chunk is already under the size limit, so it round-trips alone.
	for _, chunk := range first {
		again := c.Split(chunk)
		if len(again) != 1 || again[0] != chunk {
			t.Fatalf("single chunk not stable: %q -> %v", chunk, again)
		}
	}
}

func TestOverlapCarriesTrailingFragments(t *testing.T) {
	c := mustNew(t, Config{ChunkSize: 30, ChunkOverlap: 10, Separators: []string{" "}})
	got := c.Split("aaaa bbbb cccc dddd eeee ffff gggg hhhh")
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		curWords := strings.Fields(got[i])
		if !strings.Contains(got[i-1], curWords[0]) {
			t.Fatalf("chunk %d does not start inside the previous chunk's tail: %v", i, got)
		}
	}
}
