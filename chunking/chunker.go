// Package chunking splits document text into overlapping, boundary-aware
// segments sized for embedding.
//
// Text is first cut into paragraphs, which are packed greedily into chunks
// of at most Size characters. Each chunk that follows a size-closed chunk
// starts with the trailing Overlap characters of its predecessor. A
// paragraph that is too long on its own is split at the best natural
// boundary found before the size limit, falling back to a hard cut.
//
// All lengths are counted in runes so Chinese and Latin text size alike.
package chunking

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragbot/core"
)

const (
	// DefaultSize is the default maximum chunk length in characters.
	DefaultSize = 800
	// DefaultOverlap is the default number of characters carried between chunks.
	DefaultOverlap = 200

	paragraphSep = "\n\n"
)

// breakLevels lists split markers in priority order. Within a level the
// rightmost marker wins.
var breakLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{"。", "？", "！", "；", ". ", "? ", "! ", "; "},
	{"，", ", "},
}

// Chunker splits text into chunks. It holds no mutable state and is safe
// for concurrent use.
type Chunker struct {
	Size    int
	Overlap int
	logger  *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// New creates a Chunker after validating size and overlap.
func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if err := core.ValidateChunkingParams(size, overlap); err != nil {
		return nil, err
	}
	c := &Chunker{
		Size:    size,
		Overlap: overlap,
		logger:  slog.Default().With("component", "chunker"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Chunk splits text into ordered chunk texts. Empty or whitespace-only
// input yields an empty slice.
func (c *Chunker) Chunk(text string) ([]string, error) {
	if err := core.ValidateChunkingParams(c.Size, c.Overlap); err != nil {
		return nil, err
	}

	chunks := []string{}
	var current []rune
	// overflowed is set when the previous chunk was closed because the
	// next paragraph did not fit; only then is overlap carried forward.
	overflowed := false

	emit := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			chunks = append(chunks, s)
		}
		current = nil
	}

	for _, para := range paragraphs(text) {
		p := []rune(para)

		if len(p) > c.Size {
			emit()
			chunks = append(chunks, splitLarge(p, c.Size)...)
			overflowed = false
			continue
		}

		if len(current) > 0 && len(current)+len(paragraphSep)+len(p) > c.Size {
			emit()
			overflowed = true
		}

		switch {
		case len(current) > 0:
			current = append(current, []rune(paragraphSep)...)
			current = append(current, p...)
		case overflowed && c.Overlap > 0 && len(chunks) > 0:
			current = append(c.overlapSeed(chunks[len(chunks)-1], len(p)), p...)
			overflowed = false
		default:
			current = append(current, p...)
			overflowed = false
		}
	}
	emit()

	if c.logger != nil {
		c.logger.Debug("chunked text", "runes", utf8.RuneCountInString(text), "chunks", len(chunks))
	}
	return chunks, nil
}

// overlapSeed returns the tail of prev followed by the paragraph separator,
// shortened so that a paragraph of paraLen runes still fits.
func (c *Chunker) overlapSeed(prev string, paraLen int) []rune {
	room := c.Size - paraLen - len(paragraphSep)
	if room <= 0 {
		return nil
	}
	tail := []rune(prev)
	n := min(c.Overlap, room, len(tail))
	seed := []rune(strings.TrimLeft(string(tail[len(tail)-n:]), " \t\n"))
	if len(seed) == 0 {
		return nil
	}
	return append(seed, []rune(paragraphSep)...)
}

// paragraphs normalizes whitespace and returns the non-empty trimmed
// paragraphs of text.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(text))
	prevBlank := false
	for _, r := range text {
		if r == ' ' || r == '\t' {
			if !prevBlank {
				b.WriteRune(' ')
			}
			prevBlank = true
			continue
		}
		prevBlank = false
		b.WriteRune(r)
	}

	var out []string
	for _, p := range strings.Split(b.String(), paragraphSep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitLarge cuts text into pieces of at most size runes, preferring
// natural boundaries.
func splitLarge(text []rune, size int) []string {
	var pieces []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			if s := strings.TrimSpace(string(text[start:])); s != "" {
				pieces = append(pieces, s)
			}
			break
		}

		cut := breakPoint(text, start, end, size)
		if s := strings.TrimSpace(string(text[start:cut])); s != "" {
			pieces = append(pieces, s)
		}
		start = cut
	}
	return pieces
}

// breakPoint returns the position just after the best boundary in
// text[start:end]. Boundaries at or before start+size/3 are too close to
// the start and are ignored. Without a boundary the cut is at end.
func breakPoint(text []rune, start, end, size int) int {
	floor := start + size/3
	for _, level := range breakLevels {
		best := -1
		for _, marker := range level {
			if pos := lastIndex(text, []rune(marker), floor, end); pos > floor {
				best = max(best, pos+utf8.RuneCountInString(marker))
			}
		}
		if best > 0 {
			return best
		}
	}
	return end
}

// lastIndex finds the last occurrence of marker lying entirely inside
// text[lo:hi], or -1.
func lastIndex(text, marker []rune, lo, hi int) int {
	for i := hi - len(marker); i >= lo; i-- {
		if runesEqual(text[i:i+len(marker)], marker) {
			return i
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
