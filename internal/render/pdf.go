// Package render draws a page plan into a PDF and exports plain text.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/layout"
)

// ErrRendererNotReady is returned until the renderer's fonts are loaded.
// Callers should retry shortly; it is not a permanent failure.
var ErrRendererNotReady = errors.New("pdf renderer not ready, try again shortly")

const (
	headerFontSize = 9
	footerFontSize = 9
)

type Options struct {
	Spec         layout.PageSpec
	Policy       layout.Policy
	ProductLabel string
	// FontDir holds regular.ttf and bold.ttf for full Unicode output. When
	// empty the core PDF fonts are used.
	FontDir string
}

// Meta is document-level information stamped on pages.
type Meta struct {
	Title string
}

type Renderer struct {
	opts  Options
	log   *slog.Logger
	fonts atomic.Pointer[fontSet]
}

func New(opts Options, log *slog.Logger) *Renderer {
	return &Renderer{opts: opts, log: log}
}

// Start makes the renderer ready. Fonts from FontDir load in the background;
// if they cannot be read the core fonts are used instead.
func (r *Renderer) Start(ctx context.Context) {
	if r.opts.FontDir == "" {
		r.fonts.Store(&fontSet{})
		return
	}
	go func() {
		fs, err := loadFonts(ctx, r.opts.FontDir)
		if err != nil {
			r.log.Warn("font load failed, using core fonts", "dir", r.opts.FontDir, "error", err)
			fs = &fontSet{}
		} else {
			r.log.Info("fonts loaded", "dir", r.opts.FontDir)
		}
		r.fonts.Store(fs)
	}()
}

func (r *Renderer) Ready() bool { return r.fonts.Load() != nil }

func (r *Renderer) Spec() layout.PageSpec { return r.opts.Spec }

// Measurer returns a text measurer matching the fonts PDFs are drawn with.
// A measurer is not safe for concurrent use.
func (r *Renderer) Measurer() (layout.Measurer, error) {
	fs := r.fonts.Load()
	if fs == nil {
		return nil, ErrRendererNotReady
	}
	return newMeasurer(fs), nil
}

// Policy returns the default placement policy.
func (r *Renderer) Policy() layout.Policy { return r.opts.Policy }

// Plan lays doc out with the renderer's page spec, policy and fonts.
func (r *Renderer) Plan(doc ebook.Document) ([]layout.Page, error) {
	return r.PlanWith(doc, r.opts.Policy)
}

// PlanWith is Plan with a per-document policy, e.g. localized titles.
func (r *Renderer) PlanWith(doc ebook.Document, policy layout.Policy) ([]layout.Page, error) {
	m, err := r.Measurer()
	if err != nil {
		return nil, err
	}
	return layout.Layout(doc, r.opts.Spec, policy, m)
}

// Render lays out and draws doc. The document is treated as a snapshot and
// is never modified.
func (r *Renderer) Render(doc ebook.Document) ([]byte, error) {
	return r.RenderWith(doc, r.opts.Policy)
}

func (r *Renderer) RenderWith(doc ebook.Document, policy layout.Policy) ([]byte, error) {
	pages, err := r.PlanWith(doc, policy)
	if err != nil {
		return nil, err
	}
	return r.RenderPages(pages, Meta{Title: doc.Title})
}

// RenderPages draws pages in order, then revisits every numbered page to
// stamp the running header and the "Page X of N" footer.
func (r *Renderer) RenderPages(pages []layout.Page, meta Meta) ([]byte, error) {
	fs := r.fonts.Load()
	if fs == nil {
		return nil, ErrRendererNotReady
	}
	if len(pages) == 0 {
		return nil, ebook.ErrNoContent
	}

	spec := r.opts.Spec
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: spec.Width, Ht: spec.Height},
	})
	pdf.SetMargins(spec.Margins.Left, spec.Margins.Top, spec.Margins.Right)
	pdf.SetAutoPageBreak(false, spec.Margins.Bottom)
	pdf.SetTitle(meta.Title, true)
	if r.opts.ProductLabel != "" {
		pdf.SetCreator(r.opts.ProductLabel, true)
	}

	d := &drawer{pdf: pdf, fonts: fs, tr: fs.install(pdf), spec: spec, images: map[*ebook.Image]string{}}
	for _, pg := range pages {
		pdf.AddPage()
		for _, it := range pg.Items {
			d.placement(it)
		}
	}

	total := 0
	for _, pg := range pages {
		if pg.Number > 0 {
			total++
		}
	}
	for _, pg := range pages {
		if pg.Number == 0 {
			continue
		}
		pdf.SetPage(pg.Index)
		d.header(meta.Title)
		d.footer(pg.Number, total, r.opts.ProductLabel)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("draw pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	n, err := PageCount(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("verify pdf: %w", err)
	}
	if n != len(pages) {
		return nil, fmt.Errorf("verify pdf: %d pages written, %d planned", n, len(pages))
	}
	return buf.Bytes(), nil
}

// PageCount reads a PDF and returns its page count.
func PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
}

type drawer struct {
	pdf    *fpdf.Fpdf
	fonts  *fontSet
	tr     func(string) string
	spec   layout.PageSpec
	images map[*ebook.Image]string
}

// useFont selects a font and always emits it, since fpdf skips a SetFont
// that matches its current state even after SetPage moved to another page.
func (d *drawer) useFont(face layout.Face, bold bool, size float64) {
	d.pdf.SetFont(d.fonts.family(face), style(bold), size)
	d.pdf.SetFontSize(size)
}

func (d *drawer) placement(it layout.Placement) {
	switch it.Role {
	case layout.RoleChapterImage, layout.RoleCoverImage:
		d.image(it)
		return
	case layout.RoleChapterTitle, layout.RoleTOCTitle, layout.RoleReferencesTitle, layout.RoleCoverTitle:
		d.pdf.SetTextColor(30, 41, 59)
	case layout.RoleHeading:
		d.pdf.SetTextColor(51, 65, 85)
	case layout.RoleReference, layout.RoleCoverSubtitle:
		d.pdf.SetTextColor(71, 85, 105)
	default:
		d.pdf.SetTextColor(0, 0, 0)
	}
	for _, ln := range it.Lines {
		d.line(ln, it.Font)
	}
	if it.Role == layout.RoleTOCEntry && it.PageRef > 0 && len(it.Lines) > 0 {
		last := it.Lines[len(it.Lines)-1]
		num := strconv.Itoa(it.PageRef)
		d.useFont(it.Font.Face, false, it.Font.Size)
		x := d.spec.Width - d.spec.Margins.Right - d.pdf.GetStringWidth(num)
		d.pdf.Text(x, baseline(last, it.Font.Size), num)
	}
	d.pdf.SetTextColor(0, 0, 0)
}

func baseline(ln layout.Line, size float64) float64 {
	return ln.Y + (ln.Height+size*0.7)/2
}

func (d *drawer) line(ln layout.Line, font layout.Font) {
	x := ln.X
	y := baseline(ln, font.Size)
	for _, run := range ln.Runs {
		d.useFont(font.Face, font.Bold || run.Bold, font.Size)
		d.pdf.Text(x, y, d.tr(run.Text))
		x += run.Width
	}
}

func (d *drawer) image(it layout.Placement) {
	img := it.Image
	if img == nil || len(img.Data) == 0 {
		return
	}
	opts := fpdf.ImageOptions{ImageType: img.Format}
	name, ok := d.images[img]
	if !ok {
		name = fmt.Sprintf("img%d", len(d.images))
		d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
		d.images[img] = name
	}
	clip := it.Draw.W > it.Box.W || it.Draw.H > it.Box.H
	if clip {
		d.pdf.ClipRect(it.Box.X, it.Box.Y, it.Box.W, it.Box.H, false)
	}
	d.pdf.ImageOptions(name, it.Draw.X, it.Draw.Y, it.Draw.W, it.Draw.H, false, opts, 0, "")
	if clip {
		d.pdf.ClipEnd()
	}
}

func (d *drawer) header(title string) {
	s := d.spec
	d.useFont(layout.BodyFace, false, headerFontSize)
	d.pdf.SetTextColor(120, 120, 120)
	text := d.tr(d.fit(title, s.UsableWidth()))
	w := d.pdf.GetStringWidth(text)
	d.pdf.Text(s.Margins.Left+(s.UsableWidth()-w)/2, s.Margins.Top/2+headerFontSize*0.35, text)
	d.pdf.SetTextColor(0, 0, 0)
}

func (d *drawer) footer(number, total int, label string) {
	s := d.spec
	text := fmt.Sprintf("Page %d of %d", number, total)
	if label != "" {
		text += " - " + label
	}
	text = d.tr(text)
	d.useFont(layout.BodyFace, false, footerFontSize)
	d.pdf.SetTextColor(120, 120, 120)
	d.pdf.SetDrawColor(200, 200, 200)
	d.pdf.SetLineWidth(0.5)
	lineY := s.Height - s.Margins.Bottom + 10
	d.pdf.Line(s.Margins.Left, lineY, s.Width-s.Margins.Right, lineY)
	w := d.pdf.GetStringWidth(text)
	d.pdf.Text(s.Margins.Left+(s.UsableWidth()-w)/2, s.Height-s.Margins.Bottom/2+footerFontSize*0.35, text)
	d.pdf.SetTextColor(0, 0, 0)
}

// fit shortens text to width in the current font, adding an ellipsis.
func (d *drawer) fit(text string, width float64) string {
	if d.pdf.GetStringWidth(d.tr(text)) <= width {
		return text
	}
	r := []rune(text)
	for len(r) > 0 && d.pdf.GetStringWidth(d.tr(string(r)+"...")) > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
