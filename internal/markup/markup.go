// Package markup turns the lightweight markup found in generated chapter text
// into an ordered block sequence for layout.
//
// Recognized syntax is deliberately small: a blank line separates blocks, a
// leading "#", "##" or "###" followed by whitespace makes a heading, "**x**"
// marks emphasis, and a single newline inside a block is a hard line break.
package markup

import (
	"regexp"
	"strings"
)

// Kind classifies a Block.
type Kind int

const (
	Heading Kind = iota + 1
	Paragraph
	Image
	ReferenceEntry
)

func (k Kind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Paragraph:
		return "paragraph"
	case Image:
		return "image"
	case ReferenceEntry:
		return "reference"
	}
	return "unknown"
}

// Segment is an inline run of a block. A segment with Break set carries no
// text and forces a new line.
type Segment struct {
	Text  string
	Bold  bool
	Break bool
}

// Block is a normalized unit of content.
type Block struct {
	Kind  Kind
	Level int    // 1..3 for headings
	Text  string // source text; emphasis markers are kept
	// Segments is the inline model of Text.
	Segments []Segment
}

// Atomic reports whether the block must never be split across pages.
func (b Block) Atomic() bool {
	return b.Kind != Paragraph
}

// PlainText returns the block text without emphasis markers, with hard
// breaks rendered as newlines.
func (b Block) PlainText() string {
	var sb strings.Builder
	for _, s := range b.Segments {
		if s.Break {
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}

var (
	blankLine = regexp.MustCompile(`\n[ \t]*\n`)
	headingRe = regexp.MustCompile(`^(#{1,3})[ \t]+(.*)$`)
	boldRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
)

// Normalize splits raw markup into blocks, preserving input order. Empty
// input yields an empty (nil) sequence.
func Normalize(raw string) []Block {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var blocks []Block
	for _, cand := range blankLine.Split(raw, -1) {
		blocks = appendCandidate(blocks, strings.TrimSpace(cand))
	}
	return blocks
}

// appendCandidate converts one blank-line-delimited candidate. Any line of
// the candidate may be a heading; it closes the paragraph before it, so
// "intro\n## Title\nbody" yields a paragraph, a heading and a paragraph.
func appendCandidate(blocks []Block, cand string) []Block {
	var para []string
	flush := func() {
		if text := strings.TrimSpace(strings.Join(para, "\n")); text != "" {
			blocks = append(blocks, NewParagraph(text))
		}
		para = para[:0]
	}
	for _, line := range strings.Split(cand, "\n") {
		m := headingRe.FindStringSubmatch(strings.TrimRight(line, " \t"))
		if m == nil {
			para = append(para, line)
			continue
		}
		flush()
		if text := strings.TrimSpace(m[2]); text != "" {
			blocks = append(blocks, NewHeading(len(m[1]), text))
		}
	}
	flush()
	return blocks
}

// NewHeading builds a heading block. Levels outside 1..3 are clamped.
func NewHeading(level int, text string) Block {
	level = min(max(level, 1), 3)
	return Block{Kind: Heading, Level: level, Text: text, Segments: ParseInline(text)}
}

func NewParagraph(text string) Block {
	return Block{Kind: Paragraph, Text: text, Segments: ParseInline(text)}
}

// NewReference builds an atomic reference entry.
func NewReference(uri string) Block {
	return Block{Kind: ReferenceEntry, Text: uri, Segments: []Segment{{Text: uri}}}
}

// ParseInline splits text into emphasis runs and hard line breaks.
func ParseInline(text string) []Segment {
	var segs []Segment
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			segs = append(segs, Segment{Break: true})
		}
		pos := 0
		for _, loc := range boldRe.FindAllStringSubmatchIndex(line, -1) {
			if loc[0] > pos {
				segs = append(segs, Segment{Text: line[pos:loc[0]]})
			}
			segs = append(segs, Segment{Text: line[loc[2]:loc[3]], Bold: true})
			pos = loc[1]
		}
		if pos < len(line) {
			segs = append(segs, Segment{Text: line[pos:]})
		}
	}
	return segs
}

// Render writes blocks back to markup. Normalize(Render(Normalize(x))) is
// equal to Normalize(x).
func Render(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case Heading:
			parts = append(parts, strings.Repeat("#", b.Level)+" "+b.Text)
		case Paragraph, ReferenceEntry:
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
