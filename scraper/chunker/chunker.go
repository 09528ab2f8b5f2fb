// Package chunker splits cleaned text into bounded, overlapping chunks.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"scolaire/types"
)

// CharsPerToken approximates French text.
const CharsPerToken = 4

const (
	ChunkTokens   = 500
	OverlapTokens = 50

	DefaultChunkChars   = ChunkTokens * CharsPerToken
	DefaultOverlapChars = OverlapTokens * CharsPerToken
	DefaultMinChars     = 100
)

const (
	sectionSep  = "\n\n"
	sentenceSep = " "
)

var sentenceEnd = regexp.MustCompile(`[.!?…]\s+`)

type Chunker struct {
	chunkChars   int
	overlapChars int
	minChars     int
}

type Option func(*Chunker)

func WithChunkChars(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.chunkChars = n
		}
	}
}

func WithOverlapChars(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlapChars = n
		}
	}
}

func WithMinChars(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minChars = n
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkChars:   DefaultChunkChars,
		overlapChars: DefaultOverlapChars,
		minChars:     DefaultMinChars,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlapChars >= c.chunkChars {
		c.overlapChars = c.chunkChars / 4
	}
	if c.minChars > c.chunkChars {
		c.minChars = c.chunkChars
	}
	return c
}

// Split cuts text into chunks along paragraph boundaries, falling back to
// sentence boundaries for paragraphs larger than the budget. Every chunk but
// the first starts with a word-aligned tail of the previous one. A chunk is
// never shorter than the minimum unless it is the only one.
func (c *Chunker) Split(text, title string) []types.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if runeLen(text) < c.minChars {
		return c.finish([]string{text}, title)
	}

	a := &accumulator{c: c}
	for _, section := range splitSections(text) {
		if runeLen(section) <= c.chunkChars {
			a.add(section, sectionSep)
			continue
		}
		for i, sentence := range splitSentences(section) {
			sep := sentenceSep
			if i == 0 {
				sep = sectionSep
			}
			a.add(sentence, sep)
		}
	}
	return c.finish(a.close(), title)
}

func (c *Chunker) finish(texts []string, title string) []types.Chunk {
	chunks := make([]types.Chunk, 0, len(texts))
	for i, t := range texts {
		if title != "" {
			t = "[" + title + "]\n" + t
		}
		chunks = append(chunks, types.Chunk{Text: t, Index: i, TitleContext: title})
	}
	return chunks
}

func (c *Chunker) fits(s string) bool {
	return runeLen(s) <= c.chunkChars
}

type accumulator struct {
	c     *Chunker
	out   []string
	buf   string
	fresh string // buf without the overlap it was seeded with
}

func (a *accumulator) add(piece, sep string) {
	c := a.c
	switch {
	case a.buf == "":
		a.buf, a.fresh = piece, piece
	case c.fits(a.buf + sep + piece), runeLen(a.buf) < c.minChars:
		a.buf += sep + piece
		a.fresh += sep + piece
	default:
		a.out = append(a.out, a.buf)
		a.buf = c.withOverlap(a.buf, piece, sep)
		a.fresh = piece
	}
}

func (a *accumulator) close() []string {
	switch {
	case a.buf == "":
	case runeLen(a.buf) >= a.c.minChars || len(a.out) == 0:
		a.out = append(a.out, a.buf)
	default:
		last := len(a.out) - 1
		a.out[last] += sectionSep + a.fresh
	}
	return a.out
}

// withOverlap seeds the next buffer with the tail of prev, shortened so that
// the seeded buffer stays within the budget.
func (c *Chunker) withOverlap(prev, next, sep string) string {
	tail := overlapTail(prev, c.overlapChars)
	room := c.chunkChars - runeLen(next) - runeLen(sep)
	if room <= 0 || tail == "" {
		return next
	}
	if runeLen(tail) > room {
		tail = overlapTail(tail, room)
	}
	if tail == "" {
		return next
	}
	return tail + sep + next
}

// overlapTail returns at most the last n runes of s, starting on a word boundary.
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := len(runes) - n
	tail := runes[cut:]
	if !unicode.IsSpace(runes[cut-1]) && !unicode.IsSpace(tail[0]) {
		i := indexSpace(tail)
		if i < 0 {
			return ""
		}
		tail = tail[i+1:]
	}
	return strings.TrimLeftFunc(string(tail), unicode.IsSpace)
}

func indexSpace(rs []rune) int {
	for i, r := range rs {
		if unicode.IsSpace(r) {
			return i
		}
	}
	return -1
}

func splitSections(text string) []string {
	var sections []string
	for _, s := range strings.Split(text, sectionSep) {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}
	return sections
}

// splitSentences cuts after sentence-final punctuation followed by whitespace.
// A sentence is never subdivided further.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		_, size := utf8.DecodeRuneInString(text[m[0]:])
		if s := strings.TrimSpace(text[start : m[0]+size]); s != "" {
			sentences = append(sentences, s)
		}
		start = m[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
