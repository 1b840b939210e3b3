package layout

import (
	"strings"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/markup"
)

// PageKind tells the renderer how to decorate a page.
type PageKind int

const (
	ContentPage PageKind = iota
	CoverPage
	TOCPage
	ReferencePage
)

func (k PageKind) String() string {
	switch k {
	case CoverPage:
		return "cover"
	case TOCPage:
		return "toc"
	case ReferencePage:
		return "references"
	}
	return "content"
}

// Role identifies what a placement represents in the book.
type Role int

const (
	RoleChapterTitle Role = iota
	RoleHeading
	RoleText
	RoleChapterImage
	RoleCoverImage
	RoleCoverTitle
	RoleCoverSubtitle
	RoleTOCTitle
	RoleTOCEntry
	RoleReferencesTitle
	RoleReference
)

// Page is one fixed-size output page.
type Page struct {
	Index  int // 1-based position in the output
	Number int // printed page number, 0 when unnumbered
	Kind   PageKind
	Items  []Placement
}

func (p Page) IsCover() bool { return p.Kind == CoverPage }
func (p Page) IsTOC() bool   { return p.Kind == TOCPage }

// Rect is an axis-aligned box with its origin at the top-left corner.
type Rect struct {
	X, Y, W, H float64
}

// Placement is a block (or the part of a paragraph) positioned on a page.
// Box is the vertical extent it occupies; Lines carry absolute positions.
type Placement struct {
	Role    Role
	Block   markup.Block
	Chapter int // source chapter index, -1 outside chapters
	Font    Font
	Box     Rect
	Lines   []Line

	// Image and Draw are set for image placements. Draw may exceed Box for
	// a cover image, in which case the renderer clips to Box.
	Image *ebook.Image
	Draw  Rect

	Continued bool // a paragraph carried over from the previous page
	Scaled    bool // an image shrunk to fit the usable area

	// TOC entries only.
	Target  int
	PageRef int
}

// Line is a wrapped line of text. Y is the top of the line box.
type Line struct {
	X, Y   float64
	Width  float64
	Height float64
	Runs   []Run
}

// Run is a same-style piece of a line.
type Run struct {
	Text  string
	Bold  bool
	Width float64
}

func (l Line) Text() string {
	var sb strings.Builder
	for _, r := range l.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}
