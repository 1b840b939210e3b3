package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/gvmoraes79/FabricaEbook/internal/doctree"
)

// MarkdownParser handles Markdown files using goldmark. ATX and setext
// headings open sections; inline emphasis is kept as "**" so it survives
// into the generated chapters.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	o := doctree.NewOutliner()
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			o.Heading(h.Level, inlineText(h, src))
			continue
		}
		o.Text(blockText(n, src))
	}
	return o.Tree(baseTitle(filename)), nil
}

// blockText renders a block node. Code blocks keep their raw lines; list
// items become one line each.
func blockText(n ast.Node, src []byte) string {
	switch n := n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return strings.TrimSpace(buf.String())
	case *ast.List:
		var items []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t := blockText(c, src); t != "" {
				items = append(items, "- "+t)
			}
		}
		return strings.Join(items, "\n")
	case *ast.Paragraph, *ast.TextBlock:
		return inlineText(n, src)
	}
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := blockText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func inlineText(n ast.Node, src []byte) string {
	var buf strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				buf.Write(c.Segment.Value(src))
				if c.HardLineBreak() {
					buf.WriteByte('\n')
				} else if c.SoftLineBreak() {
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(c.Value)
			case *ast.CodeSpan:
				walk(c)
			case *ast.Emphasis:
				if c.Level == 2 {
					buf.WriteString("**")
					walk(c)
					buf.WriteString("**")
				} else {
					walk(c)
				}
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
