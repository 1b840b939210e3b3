package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

// fakeGen scripts generator answers. Hooks left nil answer with defaults.
type fakeGen struct {
	mu    sync.Mutex
	calls map[string]int

	noImages bool

	outline    func() (generate.Outline, error)
	chapter    func(req generate.ChapterRequest, call int) (generate.ChapterResult, error)
	image      func(prompt string) (*ebook.Image, error)
	cover      func() (*ebook.Image, error)
	selectRefs func(refs []string, limit int) ([]string, error)
	structure  func(text string) (generate.Structured, error)
	enhance    func(req generate.EnhanceRequest) (generate.ChapterResult, error)

	chapterReqs []generate.ChapterRequest
	enhanceReqs []generate.EnhanceRequest
}

func (f *fakeGen) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeGen) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGen) SupportsImages() bool { return !f.noImages }

func testImage() *ebook.Image {
	return &ebook.Image{Data: []byte{0x89, 'P', 'N', 'G'}, Format: "png", Width: 40, Height: 30}
}

func (f *fakeGen) Outline(ctx context.Context, req generate.OutlineRequest) (generate.Outline, error) {
	f.count("outline")
	if f.outline != nil {
		return f.outline()
	}
	return generate.Outline{Title: "Bees", Chapters: []string{"Hives", "Honey"}}, nil
}

func (f *fakeGen) ChapterContent(ctx context.Context, req generate.ChapterRequest) (generate.ChapterResult, error) {
	n := f.count("chapter:" + req.ChapterTitle)
	f.mu.Lock()
	f.chapterReqs = append(f.chapterReqs, req)
	f.mu.Unlock()
	if f.chapter != nil {
		return f.chapter(req, n)
	}
	res := generate.ChapterResult{Content: "About " + req.ChapterTitle + "."}
	if req.WantImage {
		res.ImagePrompt = "a picture of " + req.ChapterTitle
	}
	return res, nil
}

func (f *fakeGen) Image(ctx context.Context, prompt string) (*ebook.Image, error) {
	f.count("image")
	if f.image != nil {
		return f.image(prompt)
	}
	return testImage(), nil
}

func (f *fakeGen) CoverImage(ctx context.Context, title, topic string) (*ebook.Image, error) {
	f.count("cover")
	if f.cover != nil {
		return f.cover()
	}
	return testImage(), nil
}

func (f *fakeGen) SelectTopReferences(ctx context.Context, refs []string, topic string, language generate.Language, limit int) ([]string, error) {
	f.count("select")
	if f.selectRefs != nil {
		return f.selectRefs(refs, limit)
	}
	return refs[len(refs)-limit:], nil
}

func (f *fakeGen) StructureText(ctx context.Context, text string) (generate.Structured, error) {
	f.count("structure")
	if f.structure != nil {
		return f.structure(text)
	}
	return generate.Structured{Title: "Notes", Chapters: []generate.StructuredChapter{{Title: "Only", Content: text}}}, nil
}

func (f *fakeGen) EnhanceChapter(ctx context.Context, req generate.EnhanceRequest) (generate.ChapterResult, error) {
	f.count("enhance")
	f.mu.Lock()
	f.enhanceReqs = append(f.enhanceReqs, req)
	f.mu.Unlock()
	if f.enhance != nil {
		return f.enhance(req)
	}
	return generate.ChapterResult{Content: "Better: " + req.Content}, nil
}
