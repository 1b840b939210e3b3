// Package parser turns uploaded source files into plain text for enhance
// mode. Every format is parsed into a doctree first so section headings
// survive as markup.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gvmoraes79/FabricaEbook/internal/doctree"
)

var (
	// ErrUnsupportedFormat is returned for file types no parser handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoText is returned when a file parses but holds no readable text.
	ErrNoText = errors.New("no extractable text")
)

// Parser converts raw document bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// Options tune individual parsers.
type Options struct {
	// PDFFallback shells out to pdftotext when the Go PDF reader fails.
	PDFFallback bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the parser for a filename's extension.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallback}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Parse picks a parser by filename and runs it over data.
func Parse(filename string, data []byte, opts Options) (*doctree.DocTree, error) {
	p, err := ForFile(filename, opts)
	if err != nil {
		return nil, err
	}
	tree, err := p.Parse(bytes.NewReader(data), filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if tree.Empty() {
		return nil, ErrNoText
	}
	return tree, nil
}

// ExtractText returns the text of an uploaded file with section headings
// written as "#" markers.
func ExtractText(filename string, data []byte, opts Options) (string, error) {
	tree, err := Parse(filename, data, opts)
	if err != nil {
		return "", err
	}
	return tree.Markdown(), nil
}

// baseTitle strips the extension from a file name.
func baseTitle(filename string) string {
	name := filepath.Base(filename)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
