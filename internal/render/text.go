package render

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
)

// RenderPlainText dumps doc as "# title", then "## chapter" and the raw
// chapter content for each chapter. No layout is involved.
func RenderPlainText(doc ebook.Document) string {
	var sb strings.Builder
	sb.WriteString("# " + doc.Title + "\n\n")
	for _, ch := range doc.Chapters {
		sb.WriteString("## " + ch.Title + "\n\n")
		sb.WriteString(ch.Content + "\n\n")
	}
	return sb.String()
}

const maxFilenameLen = 80

// Filename derives a safe file name from title. Accents are folded to their
// base letters and every run of other non-alphanumeric characters becomes a
// single underscore.
func Filename(title, ext string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var sb strings.Builder
	pending := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pending && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pending = false
			sb.WriteRune(r)
			if sb.Len() >= maxFilenameLen {
				break
			}
			continue
		}
		pending = true
	}
	name := sb.String()
	if name == "" {
		name = "ebook"
	}
	return name + "." + strings.TrimPrefix(ext, ".")
}
