package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gvmoraes79/FabricaEbook/internal/markup"
)

func TestTokenize(t *testing.T) {
	toks := tokenize(markup.ParseInline("say **hel**lo  there\nnext"))
	require.Len(t, toks, 5)
	assert.Equal(t, []piece{{text: "say"}}, toks[0].pieces)
	assert.Equal(t, []piece{{text: "hel", bold: true}, {text: "lo"}}, toks[1].pieces)
	assert.Equal(t, []piece{{text: "there"}}, toks[2].pieces)
	assert.True(t, toks[3].brk)
	assert.Equal(t, []piece{{text: "next"}}, toks[4].pieces)
}

func TestWrap_GreedyFill(t *testing.T) {
	// 10pt font: 5pt per rune, so 30pt holds "aa bb" (25pt) but not "aa bb c".
	w := &wrapper{m: fixedMeasurer{}, font: Font{Size: 10}, max: 30, breakLong: true}
	lines := w.toLines(w.wrap(markup.ParseInline("aa bb c dddddd")), 12)
	require.Len(t, lines, 3)
	assert.Equal(t, "aa bb", lines[0].Text())
	assert.Equal(t, "c", lines[1].Text())
	assert.Equal(t, "dddddd", lines[2].Text())
	assert.InDelta(t, 30.0, lines[2].Width, 1e-9)
	assert.Equal(t, 12.0, lines[0].Height)
}

func TestWrap_SplitsLongWordsAtRunes(t *testing.T) {
	w := &wrapper{m: fixedMeasurer{}, font: Font{Size: 10}, max: 20, breakLong: true}
	lines := w.toLines(w.wrap(markup.ParseInline("ééééééééé")), 12)
	require.Len(t, lines, 3)
	assert.Equal(t, "éééé", lines[0].Text())
	assert.Equal(t, "éééé", lines[1].Text())
	assert.Equal(t, "é", lines[2].Text())
}

func TestWrap_KeepsBoldRuns(t *testing.T) {
	w := &wrapper{m: fixedMeasurer{}, font: Font{Size: 10}, max: 500, breakLong: true}
	lines := w.toLines(w.wrap(markup.ParseInline("a **b c** d")), 12)
	require.Len(t, lines, 1)
	assert.Equal(t, []Run{
		{Text: "a ", Width: 10},
		{Text: "b", Bold: true, Width: 5},
		{Text: " ", Width: 5},
		{Text: "c", Bold: true, Width: 5},
		{Text: " d", Width: 10},
	}, lines[0].Runs)
}

func TestWrap_HardBreaks(t *testing.T) {
	w := &wrapper{m: fixedMeasurer{}, font: Font{Size: 10}, max: 500, breakLong: true}
	lines := w.wrap(markup.ParseInline("one\ntwo\nthree"))
	assert.Len(t, lines, 3)
}
