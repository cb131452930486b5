// Package chunker splits text into overlapping chunks along a prioritized
// hierarchy of markdown-aware separators.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultSize    = 600
	DefaultOverlap = 60
)

// separator is a split point. cut is the offset inside sep where the text is
// divided, so a heading or bullet marker begins the following fragment and
// sentence terminators stay with the preceding one.
type separator struct {
	sep string
	cut int
}

var separators = []separator{
	{"\n## ", 1},
	{"\n### ", 1},
	{"\n- ", 1},
	{"\n\n", 2},
	{"\n", 1},
	{". ", 2},
	{" ", 1},
	{"", 0},
}

// Chunker is safe for concurrent use; it holds no mutable state.
type Chunker struct {
	size    int
	overlap int
}

type Option func(*Chunker)

// WithSize sets the target chunk size in characters.
func WithSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithOverlap sets how many trailing characters of the previous chunk
// are repeated at the start of the next one.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultSize, overlap: DefaultOverlap}
	for _, o := range opts {
		o(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// span is a half-open byte range into the text being split.
type span struct {
	start, end int
	runes      int
}

// Split returns the ordered chunks of text. Empty or whitespace-only input
// yields nil. Every chunk is non-empty and whitespace-trimmed.
func (c *Chunker) Split(text string) []string {
	ps := c.pieces(text)
	if len(ps) == 0 {
		return nil
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

// piece is one chunk before joining: body is the trimmed span of the input,
// overlap the trailing characters of the previous body and sep the single
// whitespace character that stood between them.
type piece struct {
	overlap, sep, body string
}

func (p piece) String() string { return p.overlap + p.sep + p.body }

// pieces splits text into trimmed bodies and attaches to each body after
// the first up to c.overlap trailing characters of the previous body. The
// overlap shrinks only when the chunk would exceed size+overlap characters.
func (c *Chunker) pieces(text string) []piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []piece
	prevEnd := 0
	for _, sp := range c.split(text, span{0, len(text), utf8.RuneCountInString(text)}, separators) {
		raw := text[sp.start:sp.end]
		body := strings.TrimSpace(raw)
		if body == "" {
			continue
		}
		start := sp.start + len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))

		p := piece{body: body}
		if len(out) > 0 && c.overlap > 0 {
			sep := gapSeparator(text[prevEnd:start])
			n := min(c.overlap, c.size+c.overlap-utf8.RuneCountInString(sep)-utf8.RuneCountInString(body))
			prev := out[len(out)-1].body
			if tail := strings.TrimLeftFunc(prev[runeBack(prev, len(prev), max(n, 0)):], unicode.IsSpace); tail != "" {
				p.overlap, p.sep = tail, sep
			}
		}
		out = append(out, p)
		prevEnd = start + len(body)
	}
	return out
}

// gapSeparator collapses the whitespace between two bodies to one character.
func gapSeparator(gap string) string {
	switch {
	case gap == "":
		return ""
	case strings.Contains(gap, "\n"):
		return "\n"
	default:
		return " "
	}
}

// split divides the range sp into contiguous spans of at most c.size runes
// using the first separator in seps that occurs in it.
func (c *Chunker) split(text string, sp span, seps []separator) []span {
	if sp.runes <= c.size {
		return []span{sp}
	}

	i := 0
	for ; i < len(seps)-1; i++ {
		if strings.Contains(text[sp.start:sp.end], seps[i].sep) {
			break
		}
	}
	frags := fragments(text, sp, seps[i])
	rest := seps[i+1:]

	var out []span
	cur := span{start: sp.start, end: sp.start}
	for _, f := range frags {
		if cur.runes+f.runes <= c.size {
			cur.end = f.end
			cur.runes += f.runes
			continue
		}
		if cur.end > cur.start {
			out = append(out, cur)
		}
		if f.runes > c.size && len(rest) > 0 {
			out = append(out, c.split(text, f, rest)...)
			cur = span{start: f.end, end: f.end}
			continue
		}
		cur = f
	}
	if cur.end > cur.start {
		out = append(out, cur)
	}
	return out
}

// fragments cuts sp at every occurrence of s. The empty separator yields one
// fragment per rune.
func fragments(text string, sp span, s separator) []span {
	var out []span
	if s.sep == "" {
		for pos := sp.start; pos < sp.end; {
			_, n := utf8.DecodeRuneInString(text[pos:sp.end])
			out = append(out, span{pos, pos + n, 1})
			pos += n
		}
		return out
	}

	seg := text[sp.start:sp.end]
	last, pos := 0, 0
	for {
		j := strings.Index(seg[pos:], s.sep)
		if j < 0 {
			break
		}
		at := pos + j + s.cut
		if at > last && at < len(seg) {
			out = append(out, span{sp.start + last, sp.start + at, utf8.RuneCountInString(seg[last:at])})
			last = at
		}
		pos += j + len(s.sep)
	}
	out = append(out, span{sp.start + last, sp.end, utf8.RuneCountInString(seg[last:])})
	return out
}

// runeBack returns the byte offset n runes before pos.
func runeBack(text string, pos, n int) int {
	for ; n > 0 && pos > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:pos])
		pos -= size
	}
	return pos
}
