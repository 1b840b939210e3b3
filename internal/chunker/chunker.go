// Package chunker cuts an uploaded document into pieces small enough for
// one structuring request each, keeping section headings with their text.
package chunker

import (
	"strings"

	"github.com/gvmoraes79/FabricaEbook/internal/doctree"
)

// Config controls chunking behavior. Sizes are estimated tokens.
type Config struct {
	ChunkSize    int // target chunk size
	ChunkOverlap int // carried over between pieces of one split section
	MinChunk     int // a smaller final chunk is folded into the previous one
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    6000,
		ChunkOverlap: 200,
		MinChunk:     300,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = min(d.ChunkOverlap, c.ChunkSize/4)
	}
	if c.MinChunk <= 0 {
		c.MinChunk = min(d.MinChunk, c.ChunkSize/4)
	}
	return c
}

// piece is one heading or paragraph of the flattened tree.
type piece struct {
	text       string
	tokens     int
	breadcrumb []string
	page       int
	heading    bool
}

// ChunkTree flattens tree in reading order and packs consecutive headings
// and paragraphs into sections of about ChunkSize tokens. Nothing is
// dropped: a section's text larger than the target is split at paragraph,
// then sentence, boundaries.
func ChunkTree(tree *doctree.DocTree, cfg Config) []doctree.Section {
	cfg = cfg.withDefaults()

	var pieces []piece
	var walk func(nodes []*doctree.DocNode, bc []string, depth int)
	walk = func(nodes []*doctree.DocNode, bc []string, depth int) {
		for _, n := range nodes {
			path := bc
			if t := strings.TrimSpace(n.Title); t != "" {
				path = appendCrumb(bc, t)
				h := strings.Repeat("#", min(depth, 3)) + " " + t
				pieces = append(pieces, piece{text: h, tokens: EstimateTokens(h), breadcrumb: path, page: n.Page, heading: true})
			}
			for _, part := range splitText(n.Text, cfg.ChunkSize, cfg.ChunkOverlap) {
				pieces = append(pieces, piece{text: part, tokens: EstimateTokens(part), breadcrumb: path, page: n.Page})
			}
			walk(n.Children, path, depth+1)
		}
	}
	walk(tree.Children, nil, 1)

	var (
		out     []doctree.Section
		cur     []piece
		curToks int
	)
	emit := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, section(cur, len(out)))
		cur, curToks = nil, 0
	}
	for i, p := range pieces {
		// A heading never ends a chunk: it is sized together with the
		// text that follows it.
		need := p.tokens
		for j := i; j+1 < len(pieces) && pieces[j].heading; j++ {
			need += pieces[j+1].tokens
		}
		if curToks > 0 && curToks+need > cfg.ChunkSize {
			emit()
		}
		cur = append(cur, p)
		curToks += p.tokens
	}
	if len(out) > 0 && curToks > 0 && curToks < cfg.MinChunk {
		last := &out[len(out)-1]
		tail := section(cur, last.Index)
		last.Text += "\n\n" + tail.Text
		last.PageEnd = max(last.PageEnd, tail.PageEnd)
		cur = nil
	}
	emit()
	return out
}

func section(ps []piece, index int) doctree.Section {
	texts := make([]string, len(ps))
	s := doctree.Section{Index: index}
	// The breadcrumb is that of the first body text, so a chunk opening
	// with nested headings reports the innermost one.
	crumb := ps[0].breadcrumb
	for _, p := range ps {
		if !p.heading {
			crumb = p.breadcrumb
			break
		}
	}
	s.Breadcrumb = copyBreadcrumb(crumb)
	for i, p := range ps {
		texts[i] = p.text
		if p.page > 0 {
			if s.PageStart == 0 {
				s.PageStart = p.page
			}
			s.PageEnd = p.page
		}
	}
	s.Text = strings.Join(texts, "\n\n")
	return s
}

func appendCrumb(bc []string, title string) []string {
	out := make([]string, len(bc), len(bc)+1)
	copy(out, bc)
	return append(out, title)
}

// splitText breaks text into parts of approximately targetTokens, with
// overlap between consecutive parts.
func splitText(text string, targetTokens, overlapTokens int) []string {
	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, para := range splitByParagraphs(text) {
		paraTokens := EstimateTokens(para)

		if paraTokens > targetTokens {
			if currentTokens > 0 {
				result = append(result, current.String())
				current.Reset()
				currentTokens = 0
			}
			result = append(result, splitBySentences(para, targetTokens, overlapTokens)...)
			continue
		}

		if currentTokens+paraTokens > targetTokens && currentTokens > 0 {
			result = append(result, current.String())
			overlap := getOverlapText(current.String(), overlapTokens)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = EstimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}

	if currentTokens > 0 {
		result = append(result, current.String())
	}
	return result
}

func splitByParagraphs(text string) []string {
	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySentences breaks one oversized paragraph into sentence runs.
func splitBySentences(text string, targetTokens, overlapTokens int) []string {
	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, sent := range splitSentences(text) {
		sentTokens := EstimateTokens(sent)
		if currentTokens+sentTokens > targetTokens && currentTokens > 0 {
			result = append(result, current.String())
			overlap := getOverlapText(current.String(), overlapTokens)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = EstimateTokens(overlap)
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}

	if currentTokens > 0 {
		result = append(result, current.String())
	}
	return result
}

// splitSentences cuts after '.', '!' or '?' followed by a space.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// getOverlapText returns roughly the last targetTokens of text.
func getOverlapText(text string, targetTokens int) string {
	words := strings.Fields(text)
	targetWords := int(float64(targetTokens) / tokensPerWord)
	if targetWords <= 0 || len(words) <= targetWords {
		return ""
	}
	return strings.Join(words[len(words)-targetWords:], " ")
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
