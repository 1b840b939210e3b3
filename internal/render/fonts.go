package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"github.com/gvmoraes79/FabricaEbook/internal/layout"
)

// Font files looked up in Options.FontDir. Both are required.
const (
	regularFontFile = "regular.ttf"
	boldFontFile    = "bold.ttf"

	utf8Family = "ebook"
)

// fontSet picks the families a PDF is drawn with. The zero value uses the
// core PDF fonts, which only cover cp1252.
type fontSet struct {
	regular []byte
	bold    []byte
}

func (fs *fontSet) utf8() bool { return len(fs.regular) > 0 }

func (fs *fontSet) family(face layout.Face) string {
	if fs.utf8() {
		return utf8Family
	}
	if face == layout.HeadingFace {
		return "Helvetica"
	}
	return "Times"
}

// install registers embedded fonts on pdf and returns the text translator
// that must be applied to every string handed to it.
func (fs *fontSet) install(pdf *fpdf.Fpdf) func(string) string {
	if fs.utf8() {
		pdf.AddUTF8FontFromBytes(utf8Family, "", fs.regular)
		pdf.AddUTF8FontFromBytes(utf8Family, "B", fs.bold)
		return func(s string) string { return s }
	}
	return pdf.UnicodeTranslatorFromDescriptor("")
}

func style(bold bool) string {
	if bold {
		return "B"
	}
	return ""
}

func loadFonts(ctx context.Context, dir string) (*fontSet, error) {
	var fs fontSet
	for _, f := range []struct {
		name string
		dst  *[]byte
	}{
		{regularFontFile, &fs.regular},
		{boldFontFile, &fs.bold},
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		*f.dst = data
	}
	return &fs, nil
}
