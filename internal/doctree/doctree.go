// Package doctree is the format-neutral shape of an uploaded source file:
// nested sections with headings and text, built by the parsers and consumed
// by the chunker.
package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // from metadata or the file name
	Children []*DocNode // top-level sections
}

// DocNode is a section. Leaf text nodes have no Title.
type DocNode struct {
	Title    string
	Text     string
	Page     int // source page, 0 when the format has none
	Children []*DocNode
}

// Section is a sized slice of a document handed to the structuring call.
type Section struct {
	Text       string
	Index      int
	Breadcrumb []string // enclosing headings, outermost first
	PageStart  int
	PageEnd    int
}

// Empty reports whether the tree carries no text at all.
func (t *DocTree) Empty() bool {
	empty := true
	t.Walk(func(n *DocNode, _ int) {
		if strings.TrimSpace(n.Text) != "" || strings.TrimSpace(n.Title) != "" {
			empty = false
		}
	})
	return empty
}

// Walk visits nodes depth first. depth is 1 for top-level sections.
func (t *DocTree) Walk(fn func(n *DocNode, depth int)) {
	var walk func(nodes []*DocNode, depth int)
	walk = func(nodes []*DocNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(t.Children, 1)
}

// Markdown flattens the tree into heading-marked text. Headings deeper than
// three levels are written as level 3.
func (t *DocTree) Markdown() string {
	var sb strings.Builder
	write := func(s string) {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s)
	}
	t.Walk(func(n *DocNode, depth int) {
		if title := strings.TrimSpace(n.Title); title != "" {
			write(strings.Repeat("#", min(depth, 3)) + " " + title)
		}
		if text := strings.TrimSpace(n.Text); text != "" {
			write(text)
		}
	})
	return sb.String()
}

// Outliner nests sections by heading level as a parser meets them in
// reading order. Text goes to the innermost open section.
type Outliner struct {
	root  *DocNode
	stack []outlineEntry
	text  strings.Builder
}

type outlineEntry struct {
	node  *DocNode
	level int
}

func NewOutliner() *Outliner {
	root := &DocNode{}
	return &Outliner{root: root, stack: []outlineEntry{{node: root}}}
}

// Heading opens a section at level (1 outermost), closing any open section
// at the same or a deeper level.
func (o *Outliner) Heading(level int, title string) {
	o.flush()
	n := &DocNode{Title: title}
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].node
	parent.Children = append(parent.Children, n)
	o.stack = append(o.stack, outlineEntry{node: n, level: level})
}

// Text appends a paragraph to the current section.
func (o *Outliner) Text(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if o.text.Len() > 0 {
		o.text.WriteString("\n\n")
	}
	o.text.WriteString(s)
}

func (o *Outliner) flush() {
	t := o.text.String()
	o.text.Reset()
	if t == "" {
		return
	}
	top := o.stack[len(o.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// Tree finishes the outline. Text seen before the first heading becomes a
// leading untitled section.
func (o *Outliner) Tree(title string) *DocTree {
	o.flush()
	tree := &DocTree{Title: title}
	if o.root.Text != "" {
		tree.Children = append(tree.Children, &DocNode{Text: o.root.Text})
	}
	tree.Children = append(tree.Children, o.root.Children...)
	return tree
}
