package layout

import (
	"unicode"

	"github.com/gvmoraes79/FabricaEbook/internal/markup"
)

type piece struct {
	text string
	bold bool
}

// token is a word (one or more styled pieces with no whitespace between
// them) or a hard line break.
type token struct {
	pieces []piece
	brk    bool
}

func tokenize(segs []markup.Segment) []token {
	var toks []token
	var cur []piece
	flush := func() {
		if len(cur) > 0 {
			toks = append(toks, token{pieces: cur})
			cur = nil
		}
	}
	for _, s := range segs {
		if s.Break {
			flush()
			toks = append(toks, token{brk: true})
			continue
		}
		for _, r := range s.Text {
			if unicode.IsSpace(r) {
				flush()
				continue
			}
			cur = appendRune(cur, r, s.Bold)
		}
	}
	flush()
	return toks
}

func appendRune(ps []piece, r rune, bold bool) []piece {
	if n := len(ps); n > 0 && ps[n-1].bold == bold {
		ps[n-1].text += string(r)
		return ps
	}
	return append(ps, piece{text: string(r), bold: bold})
}

// wrapper greedily fills lines up to max points wide.
type wrapper struct {
	m         Measurer
	font      Font
	max       float64
	breakLong bool
}

func (w *wrapper) fontFor(bold bool) Font {
	f := w.font
	f.Bold = f.Bold || bold
	return f
}

func (w *wrapper) piecesWidth(ps []piece) float64 {
	var total float64
	for _, p := range ps {
		total += w.m.TextWidth(p.text, w.fontFor(p.bold))
	}
	return total
}

func (w *wrapper) wrap(segs []markup.Segment) [][]piece {
	space := w.m.TextWidth(" ", w.font)

	var (
		lines [][]piece
		line  []piece
		lineW float64
	)
	emit := func() {
		lines = append(lines, line)
		line = nil
		lineW = 0
	}
	place := func(word []piece, ww float64) {
		switch {
		case len(line) == 0:
			line = append(line, word...)
			lineW = ww
		case lineW+space+ww <= w.max:
			line = append(line, piece{text: " ", bold: w.font.Bold})
			line = append(line, word...)
			lineW += space + ww
		default:
			emit()
			line = append(line, word...)
			lineW = ww
		}
	}

	for _, tok := range tokenize(segs) {
		if tok.brk {
			emit()
			continue
		}
		ww := w.piecesWidth(tok.pieces)
		if ww > w.max && w.breakLong {
			for _, chunk := range w.splitWord(tok.pieces) {
				place(chunk, w.piecesWidth(chunk))
			}
			continue
		}
		place(tok.pieces, ww)
	}
	if len(line) > 0 {
		emit()
	}
	return lines
}

// splitWord cuts a word into rune-boundary chunks no wider than max. A
// single rune wider than max still forms its own chunk.
func (w *wrapper) splitWord(word []piece) [][]piece {
	var (
		chunks [][]piece
		cur    []piece
		curW   float64
	)
	for _, p := range word {
		f := w.fontFor(p.bold)
		for _, r := range p.text {
			rw := w.m.TextWidth(string(r), f)
			if curW > 0 && curW+rw > w.max {
				chunks = append(chunks, cur)
				cur, curW = nil, 0
			}
			cur = appendRune(cur, r, p.bold)
			curW += rw
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// toLines converts wrapped pieces into measured lines without positions.
func (w *wrapper) toLines(wrapped [][]piece, height float64) []Line {
	lines := make([]Line, 0, len(wrapped))
	for _, ps := range wrapped {
		var runs []Run
		for _, p := range ps {
			if n := len(runs); n > 0 && runs[n-1].Bold == p.bold {
				runs[n-1].Text += p.text
				continue
			}
			runs = append(runs, Run{Text: p.text, Bold: p.bold})
		}
		var width float64
		for i := range runs {
			runs[i].Width = w.m.TextWidth(runs[i].Text, w.fontFor(runs[i].Bold))
			width += runs[i].Width
		}
		lines = append(lines, Line{Width: width, Height: height, Runs: runs})
	}
	return lines
}
