package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
)

// DefaultSeparators is the coarse-to-fine split order.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

type Config struct {
	ChunkSize     int
	ChunkOverlap  int
	Separators    []string
	KeepSeparator bool
}

// Chunker splits text recursively by separators, merging adjacent fragments
// greedily up to ChunkSize with a ChunkOverlap-character sliding overlap.
// Deterministic for a given config. Sizes are measured in runes.
type Chunker struct {
	chunkSize     int
	chunkOverlap  int
	separators    []string
	keepSeparator bool
}

func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, apierr.New(apierr.KindValidation, "invalid_chunk_size", "chunk_size must be positive")
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= cfg.ChunkSize {
		overlap = cfg.ChunkSize / 5
	}
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return &Chunker{
		chunkSize:     cfg.ChunkSize,
		chunkOverlap:  overlap,
		separators:    seps,
		keepSeparator: cfg.KeepSeparator,
	}, nil
}

// Split chunks text into an ordered sequence of non-empty strings.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.splitText(text, c.separators)
}

func (c *Chunker) splitText(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			sep = s
			rest = nil
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	splits := splitWithSeparator(text, sep, c.keepSeparator)

	mergeSep := sep
	if c.keepSeparator {
		mergeSep = ""
	}

	var final []string
	var good []string
	for _, s := range splits {
		if utf8.RuneCountInString(s) < c.chunkSize {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.mergeSplits(good, mergeSep)...)
			good = nil
		}
		if len(rest) == 0 {
			// Nothing finer to split by; the caller accepts the oversize.
			final = append(final, s)
		} else {
			final = append(final, c.splitText(s, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.mergeSplits(good, mergeSep)...)
	}
	return final
}

// mergeSplits greedily packs fragments up to chunkSize, carrying the last
// chunkOverlap runes worth of fragments into the next chunk.
func (c *Chunker) mergeSplits(splits []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var docs []string
	var current []string
	total := 0

	sepIf := func(cond bool) int {
		if cond {
			return sepLen
		}
		return 0
	}

	for _, d := range splits {
		l := utf8.RuneCountInString(d)
		if total+l+sepIf(len(current) > 0) > c.chunkSize && len(current) > 0 {
			if doc := joinFragments(current, sep); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.chunkOverlap ||
				(total+l+sepIf(len(current) > 0) > c.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0]) + sepIf(len(current) > 1)
				current = current[1:]
			}
		}
		current = append(current, d)
		total += l + sepIf(len(current) > 1)
	}
	if doc := joinFragments(current, sep); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinFragments(parts []string, sep string) string {
	return strings.TrimSpace(strings.Join(parts, sep))
}

func splitWithSeparator(text, sep string, keep bool) []string {
	var parts []string
	if sep == "" {
		parts = strings.Split(text, "")
	} else if keep {
		raw := strings.Split(text, sep)
		parts = make([]string, 0, len(raw))
		for i, p := range raw {
			if i > 0 {
				p = sep + p
			}
			parts = append(parts, p)
		}
	} else {
		parts = strings.Split(text, sep)
	}

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
