package chunker

import (
	"strings"
	"testing"

	"github.com/gvmoraes79/FabricaEbook/internal/doctree"
)

func TestChunkTree_SmallTreeFitsOneChunk(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Small",
		Children: []*doctree.DocNode{
			{
				Title: "Section",
				Text:  strings.Repeat("word ", 200), // ~200 words -> ~266 tokens, above default MinChunk
			},
		},
	}

	cfg := Config{
		ChunkSize:    1500,
		ChunkOverlap: 200,
		MinChunk:     50,
	}
	chunks := ChunkTree(tree, cfg)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if !strings.Contains(chunks[0].Text, "word") {
		t.Errorf("expected chunk text to contain 'word', got %q", chunks[0].Text)
	}
}

func TestChunkTree_LargeTreeRequiresSplitting(t *testing.T) {
	// Generate text that is well above ChunkSize tokens.
	// ~3000 words -> ~3990 tokens at 1.33 tokens/word.
	largeText := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 300)

	tree := &doctree.DocTree{
		Title: "Large",
		Children: []*doctree.DocNode{
			{
				Title: "Big Section",
				Text:  largeText,
			},
		},
	}

	cfg := Config{
		ChunkSize:    500,
		ChunkOverlap: 50,
		MinChunk:     10,
	}
	chunks := ChunkTree(tree, cfg)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks for large text, got %d", len(chunks))
	}

	// Verify sequential indexing.
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.Index)
		}
	}

	// Verify no chunk exceeds the target size by a large margin.
	// (Due to paragraph/sentence boundaries, slight overflows are expected.)
	for i, c := range chunks {
		tokens := EstimateTokens(c.Text)
		// Allow 2x the target as a generous ceiling.
		if tokens > cfg.ChunkSize*2 {
			t.Errorf("chunk %d: %d tokens exceeds 2x target %d", i, tokens, cfg.ChunkSize)
		}
	}
}

func TestChunkTree_BreadcrumbPropagation(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{
				Title: "Chapter 1",
				Children: []*doctree.DocNode{
					{
						Title: "Section 1.1",
						Text:  strings.Repeat("content ", 200),
					},
				},
			},
		},
	}

	cfg := Config{
		ChunkSize:    2000,
		ChunkOverlap: 100,
		MinChunk:     10,
	}
	chunks := ChunkTree(tree, cfg)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	bc := chunks[0].Breadcrumb
	want := []string{"Chapter 1", "Section 1.1"}
	if len(bc) != len(want) {
		t.Fatalf("expected breadcrumb %v, got %v", want, bc)
	}
	for i := range want {
		if bc[i] != want[i] {
			t.Errorf("breadcrumb[%d]: expected %q, got %q", i, want[i], bc[i])
		}
	}
}

func TestChunkTree_BreadcrumbIsolation(t *testing.T) {
	// Two sections that do not fit together must not share breadcrumbs.
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{
				Title: "A",
				Text:  strings.Repeat("alpha ", 200),
			},
			{
				Title: "B",
				Text:  strings.Repeat("beta ", 200),
			},
		},
	}

	cfg := Config{
		ChunkSize:    300,
		ChunkOverlap: 20,
		MinChunk:     10,
	}
	chunks := ChunkTree(tree, cfg)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	if len(chunks[0].Breadcrumb) != 1 || chunks[0].Breadcrumb[0] != "A" {
		t.Errorf("chunk 0 breadcrumb: expected [A], got %v", chunks[0].Breadcrumb)
	}
	if len(chunks[1].Breadcrumb) != 1 || chunks[1].Breadcrumb[0] != "B" {
		t.Errorf("chunk 1 breadcrumb: expected [B], got %v", chunks[1].Breadcrumb)
	}
	if !strings.HasPrefix(chunks[1].Text, "# B\n\n") {
		t.Errorf("expected chunk 1 to open with its heading, got %q", chunks[1].Text[:10])
	}
}

func TestChunkTree_SmallSectionsArePacked(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{Title: "One", Text: "First body."},
			{Title: "Two", Text: "Second body.", Children: []*doctree.DocNode{
				{Title: "Two.a", Text: "Nested body."},
			}},
		},
	}
	chunks := ChunkTree(tree, DefaultConfig())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	want := "# One\n\nFirst body.\n\n# Two\n\nSecond body.\n\n## Two.a\n\nNested body."
	if chunks[0].Text != want {
		t.Errorf("expected %q, got %q", want, chunks[0].Text)
	}
}

func TestChunkTree_ShortInputIsKept(t *testing.T) {
	// Nothing is dropped, however small.
	tree := &doctree.DocTree{
		Title: "Tiny",
		Children: []*doctree.DocNode{
			{
				Title: "Short",
				Text:  "Hi",
			},
		},
	}

	cfg := Config{
		ChunkSize:    1500,
		ChunkOverlap: 200,
		MinChunk:     100,
	}
	chunks := ChunkTree(tree, cfg)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "# Short\n\nHi" {
		t.Errorf("unexpected text %q", chunks[0].Text)
	}
}

func TestChunkTree_SmallTailFoldsIntoPrevious(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{Text: strings.Repeat("body ", 200), Page: 1},
			{Text: "Tail words.", Page: 2},
		},
	}
	cfg := Config{ChunkSize: 267, ChunkOverlap: 10, MinChunk: 50}
	chunks := ChunkTree(tree, cfg)
	if len(chunks) != 1 {
		t.Fatalf("expected the tail to fold into 1 chunk, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, "Tail words.") {
		t.Errorf("expected tail at the end of the chunk")
	}
	if chunks[0].PageStart != 1 || chunks[0].PageEnd != 2 {
		t.Errorf("expected pages 1-2, got %d-%d", chunks[0].PageStart, chunks[0].PageEnd)
	}
}

func TestChunkTree_EmptyTree(t *testing.T) {
	tree := &doctree.DocTree{Title: "Empty"}
	chunks := ChunkTree(tree, DefaultConfig())
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks, got %d", len(chunks))
	}
}

func TestChunkTree_DefaultConfigFallback(t *testing.T) {
	// Zero-value config should be replaced with defaults.
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{Text: strings.Repeat("word ", 200)},
		},
	}
	chunks := ChunkTree(tree, Config{})
	// Should not panic and should produce at least one chunk.
	if len(chunks) < 1 {
		t.Errorf("expected at least 1 chunk with zero config (defaults applied), got %d", len(chunks))
	}
}

func TestChunkTree_NodeWithNoText(t *testing.T) {
	// Container node with no text, only children.
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{
				Title: "Container",
				// No Text, just children.
				Children: []*doctree.DocNode{
					{
						Title: "Leaf",
						Text:  strings.Repeat("leaf content ", 100),
					},
				},
			},
		},
	}

	cfg := Config{
		ChunkSize:    2000,
		ChunkOverlap: 100,
		MinChunk:     10,
	}
	chunks := ChunkTree(tree, cfg)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	want := []string{"Container", "Leaf"}
	bc := chunks[0].Breadcrumb
	if len(bc) != len(want) {
		t.Fatalf("expected breadcrumb %v, got %v", want, bc)
	}
	for i := range want {
		if bc[i] != want[i] {
			t.Errorf("breadcrumb[%d]: expected %q, got %q", i, want[i], bc[i])
		}
	}
}
