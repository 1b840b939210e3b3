// Package layout partitions a document into fixed-size pages.
//
// Layout is a pure computation: text widths come from an injected Measurer
// and image heights from aspect ratios, so the same page plan can be drawn by
// any backend.
package layout

import (
	"errors"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/markup"
)

// Column reserved on the right of a TOC entry for its page number.
const tocNumberColumn = 40

// Layout places doc on pages in strict document order: cover, table of
// contents, chapters, references. Cover and TOC pages are unnumbered; every
// other page is numbered from 1.
func Layout(doc ebook.Document, spec PageSpec, policy Policy, m Measurer) ([]Page, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("layout: nil measurer")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	e := &engine{
		spec:        spec,
		policy:      policy,
		m:           m,
		chapterPage: make(map[int]int, len(doc.Chapters)),
	}
	if policy.Diagramming && doc.Cover != nil && doc.Cover.AspectRatio() > 0 {
		e.cover(doc.Title, doc.Cover)
	}
	if policy.Diagramming && len(doc.Chapters) > 0 {
		e.toc(doc.Chapters)
	}
	for i, ch := range doc.Chapters {
		e.chapter(i, ch)
	}
	if doc.References.Len() > 0 {
		e.references(doc.References.Sorted())
	}
	e.number()
	return e.pages, nil
}

type engine struct {
	spec   PageSpec
	policy Policy
	m      Measurer

	pages []Page
	y     float64
	// open is true while lines are being appended to the last placement.
	open bool

	chapterPage map[int]int // chapter index -> slice index of its first page
}

func (e *engine) last() *Page { return &e.pages[len(e.pages)-1] }

func (e *engine) newPage(kind PageKind) {
	e.pages = append(e.pages, Page{Kind: kind})
	e.y = e.spec.Margins.Top
	e.open = false
}

// breakPage starts a fresh page, reusing the current one if nothing has been
// placed on it yet.
func (e *engine) breakPage(kind PageKind) {
	if len(e.pages) > 0 && len(e.last().Items) == 0 {
		e.last().Kind = kind
		return
	}
	e.newPage(kind)
}

func (e *engine) atTop() bool {
	return len(e.pages) == 0 || len(e.last().Items) == 0
}

// put appends p to the current page at y+gap. p is built with its top at 0.
func (e *engine) put(p Placement, gap float64) {
	e.y += gap
	p.Box.Y += e.y
	p.Draw.Y += e.y
	for i := range p.Lines {
		p.Lines[i].Y += e.y
	}
	e.y += p.Box.H
	e.last().Items = append(e.last().Items, p)
	e.open = false
}

// placeAtomic applies the lookahead rule: a block that does not fit below the
// cursor moves to a new page. On an empty page it is always placed.
func (e *engine) placeAtomic(p Placement, gap float64) {
	if len(e.pages) == 0 {
		e.newPage(ContentPage)
	}
	if e.atTop() {
		gap = 0
	} else if e.y+gap+p.Box.H > e.spec.ContentBottom() {
		e.newPage(e.last().Kind)
		gap = 0
	}
	e.put(p, gap)
}

func (e *engine) wrapper(font Font, width float64) *wrapper {
	return &wrapper{m: e.m, font: font, max: width, breakLong: e.policy.BreakLongWords}
}

func (e *engine) headingFont(level int) Font {
	return Font{Face: HeadingFace, Bold: true, Size: e.spec.headingFontSize(level)}
}

// textPlacement wraps b into the usable width (less reserve) and positions
// its lines relative to a zero top.
func (e *engine) textPlacement(role Role, b markup.Block, chapter int, font Font, lineHeight, reserve float64) Placement {
	width := e.spec.UsableWidth() - reserve
	w := e.wrapper(font, width)
	lines := w.toLines(w.wrap(b.Segments), lineHeight)
	left := e.spec.Margins.Left
	for i := range lines {
		lines[i].X = left
		lines[i].Y = float64(i) * lineHeight
	}
	return Placement{
		Role:    role,
		Block:   b,
		Chapter: chapter,
		Font:    font,
		Box:     Rect{X: left, W: e.spec.UsableWidth(), H: float64(len(lines)) * lineHeight},
		Lines:   lines,
	}
}

func (e *engine) chapter(i int, ch ebook.Chapter) {
	e.breakPage(ContentPage)

	title := e.textPlacement(RoleChapterTitle, markup.NewHeading(1, ch.Title), i,
		e.headingFont(1), e.spec.headingLineHeight(1), 0)
	e.placeAtomic(title, 0)
	e.chapterPage[i] = len(e.pages) - 1

	if ch.Image != nil && ch.Image.AspectRatio() > 0 {
		e.image(i, ch.Image)
	}

	headingGap := e.spec.ParagraphSpacing * e.spec.HeadingSpacingMultiplier
	for _, b := range markup.Normalize(ch.Content) {
		if b.Kind == markup.Heading {
			p := e.textPlacement(RoleHeading, b, i, e.headingFont(b.Level), e.spec.headingLineHeight(b.Level), 0)
			e.placeAtomic(p, headingGap)
			continue
		}
		e.paragraph(i, b)
	}
}

// image scales img to the display width, or to the usable height when that
// would still overflow an empty page, and centers it horizontally.
func (e *engine) image(chapter int, img *ebook.Image) {
	usableW := e.spec.UsableWidth()
	aspect := img.AspectRatio()

	w := min(e.spec.ImageMaxWidth, usableW)
	h := w * aspect
	scaled := false
	if h > e.spec.UsableHeight() {
		h = e.spec.UsableHeight()
		w = h / aspect
		scaled = true
	}

	e.placeAtomic(Placement{
		Role:    RoleChapterImage,
		Block:   markup.Block{Kind: markup.Image},
		Chapter: chapter,
		Box:     Rect{X: e.spec.Margins.Left, W: usableW, H: h},
		Image:   img,
		Draw:    Rect{X: e.spec.Margins.Left + (usableW-w)/2, W: w, H: h},
		Scaled:  scaled,
	}, e.spec.ParagraphSpacing)
}

// paragraph places lines one at a time. A line that would cross the bottom
// margin opens a new page and the remainder becomes a continued placement.
func (e *engine) paragraph(chapter int, b markup.Block) {
	font := Font{Face: BodyFace, Size: e.spec.BodyFontSize}
	lh := e.spec.BaseLineHeight
	w := e.wrapper(font, e.spec.UsableWidth())
	lines := w.toLines(w.wrap(b.Segments), lh)

	for i, ln := range lines {
		gap := 0.0
		if i == 0 && !e.atTop() {
			gap = e.spec.ParagraphSpacing
		}
		if !e.atTop() && e.y+gap+lh > e.spec.ContentBottom() {
			e.newPage(e.last().Kind)
			gap = 0
		}
		if !e.open {
			e.y += gap
			e.last().Items = append(e.last().Items, Placement{
				Role:      RoleText,
				Block:     b,
				Chapter:   chapter,
				Font:      font,
				Box:       Rect{X: e.spec.Margins.Left, Y: e.y, W: e.spec.UsableWidth()},
				Continued: i > 0,
			})
			e.open = true
		}
		p := &e.last().Items[len(e.last().Items)-1]
		ln.X = e.spec.Margins.Left
		ln.Y = e.y
		p.Lines = append(p.Lines, ln)
		p.Box.H += lh
		e.y += lh
	}
	e.open = false
}

func (e *engine) toc(chapters []ebook.Chapter) {
	e.newPage(TOCPage)
	if e.policy.TOCTitle != "" {
		title := e.textPlacement(RoleTOCTitle, markup.NewHeading(1, e.policy.TOCTitle), -1,
			e.headingFont(1), e.spec.headingLineHeight(1), 0)
		e.placeAtomic(title, 0)
	}
	font := Font{Face: BodyFace, Size: e.spec.TOCFontSize}
	for i, ch := range chapters {
		p := e.textPlacement(RoleTOCEntry, markup.NewParagraph(ch.Title), -1,
			font, e.spec.TOCLineHeight, tocNumberColumn)
		p.Target = i
		e.placeAtomic(p, 0)
	}
}

func (e *engine) references(refs []string) {
	e.breakPage(ReferencePage)
	if e.policy.ReferencesTitle != "" {
		title := e.textPlacement(RoleReferencesTitle, markup.NewHeading(2, e.policy.ReferencesTitle), -1,
			e.headingFont(2), e.spec.headingLineHeight(2), 0)
		e.placeAtomic(title, 0)
	}
	font := Font{Face: BodyFace, Size: e.spec.ReferenceFontSize}
	for _, ref := range refs {
		p := e.textPlacement(RoleReference, markup.NewReference(ref), -1,
			font, e.spec.ReferenceLineHeight, 0)
		e.placeAtomic(p, e.spec.ParagraphSpacing/2)
	}
}

// cover fills the upper three fifths of the page with the image, scaled to
// cover the area, and centers the title and subtitle in the rest.
func (e *engine) cover(title string, img *ebook.Image) {
	e.newPage(CoverPage)
	s := e.spec

	box := Rect{W: s.Width, H: s.Height * 3 / 5}
	scale := max(box.W/float64(img.Width), box.H/float64(img.Height))
	dw, dh := float64(img.Width)*scale, float64(img.Height)*scale
	e.last().Items = append(e.last().Items, Placement{
		Role:    RoleCoverImage,
		Block:   markup.Block{Kind: markup.Image},
		Chapter: -1,
		Box:     box,
		Image:   img,
		Draw:    Rect{X: (box.W - dw) / 2, Y: (box.H - dh) / 2, W: dw, H: dh},
	})

	titleFont := Font{Face: HeadingFace, Bold: true, Size: s.CoverTitleFontSize}
	subFont := Font{Face: BodyFace, Size: s.CoverSubtitleFontSize}
	parts := []Placement{e.centered(RoleCoverTitle, title, titleFont)}
	if e.policy.CoverSubtitle != "" {
		parts = append(parts, e.centered(RoleCoverSubtitle, e.policy.CoverSubtitle, subFont))
	}

	gap := s.ParagraphSpacing
	total := gap * float64(len(parts)-1)
	for _, p := range parts {
		total += p.Box.H
	}
	y := box.H + max(0, (s.Height-box.H-total)/2)
	for _, p := range parts {
		p.Box.Y += y
		for i := range p.Lines {
			p.Lines[i].Y += y
		}
		e.last().Items = append(e.last().Items, p)
		y += p.Box.H + gap
	}
}

func (e *engine) centered(role Role, text string, font Font) Placement {
	p := e.textPlacement(role, markup.NewParagraph(text), -1, font, font.Size*1.25, 0)
	for i := range p.Lines {
		p.Lines[i].X = e.spec.Margins.Left + (e.spec.UsableWidth()-p.Lines[i].Width)/2
	}
	return p
}

// number assigns indices and printed numbers, then resolves TOC targets.
func (e *engine) number() {
	n := 0
	for i := range e.pages {
		e.pages[i].Index = i + 1
		switch e.pages[i].Kind {
		case ContentPage, ReferencePage:
			n++
			e.pages[i].Number = n
		}
	}
	for i := range e.pages {
		if e.pages[i].Kind != TOCPage {
			continue
		}
		for j := range e.pages[i].Items {
			it := &e.pages[i].Items[j]
			if it.Role != RoleTOCEntry {
				continue
			}
			if idx, ok := e.chapterPage[it.Target]; ok {
				it.PageRef = e.pages[idx].Number
			}
		}
	}
}
