package render

import (
	"github.com/go-pdf/fpdf"

	"github.com/gvmoraes79/FabricaEbook/internal/layout"
)

// pdfMeasurer reports advance widths from the same font metrics the PDF is
// drawn with, so a line the layout accepted never overflows on paper.
type pdfMeasurer struct {
	pdf   *fpdf.Fpdf
	fonts *fontSet
	tr    func(string) string
}

func newMeasurer(fonts *fontSet) *pdfMeasurer {
	pdf := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt"})
	return &pdfMeasurer{pdf: pdf, fonts: fonts, tr: fonts.install(pdf)}
}

func (m *pdfMeasurer) TextWidth(text string, font layout.Font) float64 {
	m.pdf.SetFont(m.fonts.family(font.Face), style(font.Bold), font.Size)
	return m.pdf.GetStringWidth(m.tr(text))
}
