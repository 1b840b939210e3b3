package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/gvmoraes79/FabricaEbook/internal/chunker"
	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
	"github.com/gvmoraes79/FabricaEbook/internal/parser"
)

func runJob(t *testing.T, gen *fakeGen, job *Job) JobSnapshot {
	t.Helper()
	w := NewWorker(gen, testLogger(), fastRetry(), chunker.DefaultConfig(), parser.Options{})
	w.Process(context.Background(), job)
	return job.Snapshot()
}

func createJob(p Params) *Job {
	if p.Topic == "" {
		p.Topic = "beekeeping"
	}
	if p.Language == "" {
		p.Language = generate.English
	}
	p.MinPages, p.MaxPages = 5, 10
	return NewJob(KindCreate, p, "")
}

func TestCreate_FullBook(t *testing.T) {
	sources := map[string][]string{
		"Introduction": {"https://a.org", "https://b.org"},
		"Hives":        {"https://b.org", "https://c.org"},
		"Honey":        {"https://d.org", "https://e.org"},
	}
	gen := &fakeGen{
		chapter: func(req generate.ChapterRequest, _ int) (generate.ChapterResult, error) {
			return generate.ChapterResult{
				Content:     "About " + req.ChapterTitle + ".",
				Sources:     sources[req.ChapterTitle],
				ImagePrompt: "draw " + req.ChapterTitle,
			}, nil
		},
	}
	job := createJob(Params{IncludeImages: true, Diagramming: true})
	snap := runJob(t, gen, job)

	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (errors %v)", snap.Status, snap.Progress.Errors)
	}
	doc, err := job.ExportDocument()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var titles []string
	for _, ch := range doc.Chapters {
		titles = append(titles, ch.Title)
		if ch.Image == nil {
			t.Errorf("expected an image for chapter %q", ch.Title)
		}
	}
	want := []string{"Introduction", "Hives", "Honey", "Conclusion"}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("expected chapters %v, got %v", want, titles)
	}
	if doc.Title != "Bees" || doc.Topic != "beekeeping" {
		t.Errorf("unexpected title/topic %q/%q", doc.Title, doc.Topic)
	}
	if doc.Cover == nil {
		t.Error("expected a cover image")
	}
	// Five distinct sources, reduced to the last three by the fake.
	if got := doc.References.Sorted(); !reflect.DeepEqual(got, []string{"https://c.org", "https://d.org", "https://e.org"}) {
		t.Errorf("unexpected references %v", got)
	}
	if snap.Progress.ChaptersTotal != 4 || snap.Progress.ChaptersDone != 4 || snap.Progress.Images != 5 {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}
	for _, req := range gen.chapterReqs {
		if req.BookTitle != "Bees" || req.Language != generate.English || !req.WantImage {
			t.Errorf("unexpected chapter request %+v", req)
		}
	}
}

func TestCreate_NoDiagrammingNoCover(t *testing.T) {
	gen := &fakeGen{}
	job := createJob(Params{Diagramming: false})
	snap := runJob(t, gen, job)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	if gen.Calls("cover") != 0 || gen.Calls("image") != 0 {
		t.Error("expected no image calls")
	}
	doc, _ := job.Document()
	if doc.Cover != nil {
		t.Error("expected no cover")
	}
}

func TestCreate_PortugueseLabelsByDefault(t *testing.T) {
	gen := &fakeGen{}
	job := NewJob(KindCreate, Params{Topic: "abelhas", Language: generate.DefaultLanguage}, "")
	runJob(t, gen, job)
	doc, _ := job.Document()
	if doc.Chapters[0].Title != "Introdução" || doc.Chapters[len(doc.Chapters)-1].Title != "Conclusão" {
		t.Errorf("expected Portuguese framing chapters, got %q ... %q", doc.Chapters[0].Title, doc.Chapters[len(doc.Chapters)-1].Title)
	}
}

func TestCreate_TransientChapterErrorIsRetried(t *testing.T) {
	gen := &fakeGen{
		chapter: func(req generate.ChapterRequest, call int) (generate.ChapterResult, error) {
			if req.ChapterTitle == "Hives" && call < 3 {
				return generate.ChapterResult{}, &generate.RetryableError{StatusCode: 429, Message: "slow down"}
			}
			return generate.ChapterResult{Content: "ok"}, nil
		},
	}
	snap := runJob(t, gen, createJob(Params{}))
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	if gen.Calls("chapter:Hives") != 3 {
		t.Errorf("expected 3 attempts, got %d", gen.Calls("chapter:Hives"))
	}
}

func TestCreate_ChapterFailuresMakePartialBook(t *testing.T) {
	gen := &fakeGen{
		chapter: func(req generate.ChapterRequest, _ int) (generate.ChapterResult, error) {
			switch req.ChapterTitle {
			case "Hives":
				return generate.ChapterResult{}, &generate.MalformedResponseError{Op: "chapter", Err: errors.New("empty content")}
			case "Honey":
				return generate.ChapterResult{}, &generate.RetryableError{StatusCode: 503, Message: "unavailable"}
			}
			return generate.ChapterResult{Content: "ok"}, nil
		},
	}
	job := createJob(Params{})
	snap := runJob(t, gen, job)

	if snap.Status != StatusPartial {
		t.Fatalf("expected partial, got %q", snap.Status)
	}
	if gen.Calls("chapter:Hives") != 1 {
		t.Errorf("expected malformed responses not to be retried, got %d calls", gen.Calls("chapter:Hives"))
	}
	if gen.Calls("chapter:Honey") != 3 {
		t.Errorf("expected 3 attempts at a transient failure, got %d", gen.Calls("chapter:Honey"))
	}
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", snap.Progress.Errors)
	}
	if !strings.Contains(snap.Progress.Errors[1], "generation failed after 3 attempts") {
		t.Errorf("expected attempts in message, got %q", snap.Progress.Errors[1])
	}
	doc, _ := job.ExportDocument()
	if len(doc.Chapters) != 2 {
		t.Errorf("expected the 2 good chapters, got %d", len(doc.Chapters))
	}
}

func TestCreate_AllChaptersFail(t *testing.T) {
	gen := &fakeGen{
		chapter: func(generate.ChapterRequest, int) (generate.ChapterResult, error) {
			return generate.ChapterResult{}, &generate.MalformedResponseError{Op: "chapter", Err: errors.New("bad")}
		},
	}
	snap := runJob(t, gen, createJob(Params{}))
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
}

func TestCreate_OutlineFailure(t *testing.T) {
	gen := &fakeGen{
		outline: func() (generate.Outline, error) {
			return generate.Outline{}, &generate.RetryableError{StatusCode: 500, Message: "boom"}
		},
	}
	job := createJob(Params{})
	snap := runJob(t, gen, job)
	if snap.Status != StatusFailed || snap.Phase != "outline" {
		t.Fatalf("expected failure in outline, got %q/%q", snap.Status, snap.Phase)
	}
	if gen.Calls("outline") != 3 {
		t.Errorf("expected 3 attempts, got %d", gen.Calls("outline"))
	}
	if _, err := job.Document(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected no document, got %v", err)
	}
}

func TestCreate_ImageFailuresDegrade(t *testing.T) {
	gen := &fakeGen{
		image: func(string) (*ebook.Image, error) { return nil, errors.New("refused") },
		cover: func() (*ebook.Image, error) {
			return nil, &generate.MalformedResponseError{Op: "image", Err: errors.New("no image")}
		},
	}
	job := createJob(Params{IncludeImages: true, Diagramming: true})
	snap := runJob(t, gen, job)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	if len(snap.Progress.Warnings) != 5 {
		t.Errorf("expected a warning per missing image, got %v", snap.Progress.Warnings)
	}
	doc, _ := job.Document()
	if doc.Cover != nil {
		t.Error("expected no cover")
	}
	for _, ch := range doc.Chapters {
		if ch.Image != nil {
			t.Errorf("expected no image in %q", ch.Title)
		}
	}
}

func TestCreate_BackendWithoutImages(t *testing.T) {
	gen := &fakeGen{noImages: true}
	job := createJob(Params{IncludeImages: true, Diagramming: true})
	snap := runJob(t, gen, job)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	if gen.Calls("cover") != 0 || gen.Calls("image") != 0 {
		t.Error("expected no image calls")
	}
	for _, req := range gen.chapterReqs {
		if req.WantImage {
			t.Fatal("expected chapters not to ask for image prompts")
		}
	}
	if len(snap.Progress.Warnings) != 2 {
		t.Errorf("expected cover and chapter warnings, got %v", snap.Progress.Warnings)
	}
}

func TestCreate_ReferenceSelectionFallback(t *testing.T) {
	gen := &fakeGen{
		chapter: func(req generate.ChapterRequest, _ int) (generate.ChapterResult, error) {
			return generate.ChapterResult{Content: "x", Sources: []string{
				"https://" + strings.ToLower(req.ChapterTitle) + ".org",
			}}, nil
		},
		selectRefs: func([]string, int) ([]string, error) {
			return nil, &generate.MalformedResponseError{Op: "select_references", Err: errors.New("none known")}
		},
	}
	job := createJob(Params{})
	snap := runJob(t, gen, job)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	doc, _ := job.Document()
	want := []string{"https://conclusion.org", "https://hives.org", "https://honey.org"}
	if got := doc.References.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected first three sorted references %v, got %v", want, got)
	}
}

func TestCreate_FewReferencesSkipSelection(t *testing.T) {
	gen := &fakeGen{
		chapter: func(generate.ChapterRequest, int) (generate.ChapterResult, error) {
			return generate.ChapterResult{Content: "x", Sources: []string{"https://same.org"}}, nil
		},
	}
	job := createJob(Params{})
	runJob(t, gen, job)
	if gen.Calls("select") != 0 {
		t.Error("expected no selection call for a single reference")
	}
	doc, _ := job.Document()
	if doc.References.Len() != 1 {
		t.Errorf("expected deduplicated single reference, got %d", doc.References.Len())
	}
}

func TestCreate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGen{
		chapter: func(req generate.ChapterRequest, _ int) (generate.ChapterResult, error) {
			cancel()
			return generate.ChapterResult{}, context.Canceled
		},
	}
	job := createJob(Params{})
	NewWorker(gen, testLogger(), fastRetry(), chunker.DefaultConfig(), parser.Options{}).Process(ctx, job)
	if snap := job.Snapshot(); snap.Status != StatusFailed {
		t.Errorf("expected failed after cancel, got %q", snap.Status)
	}
	if gen.Calls("chapter:Hives") != 0 {
		t.Error("expected no chapters after cancel")
	}
}

func enhanceJob(filename, content string, p Params) *Job {
	p.Filename = filename
	if p.Language == "" {
		p.Language = generate.English
	}
	job := NewJob(KindEnhance, p, "")
	job.SetFileData([]byte(content))
	return job
}

func TestEnhance_Flow(t *testing.T) {
	gen := &fakeGen{
		structure: func(text string) (generate.Structured, error) {
			return generate.Structured{Title: "Field Notes", Chapters: []generate.StructuredChapter{
				{Title: "Birds", Content: "Robins."},
				{Title: "", Content: "Untitled part."},
			}}, nil
		},
	}
	job := enhanceJob("notes.md", "# Birds\n\nRobins.\n\nUntitled part.", Params{Style: generate.MoreDidactic, Diagramming: true})
	snap := runJob(t, gen, job)

	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	doc, _ := job.ExportDocument()
	if doc.Title != "Field Notes" || doc.Topic != "notes.md" {
		t.Errorf("unexpected title/topic %q/%q", doc.Title, doc.Topic)
	}
	if len(doc.Chapters) != 2 || doc.Chapters[0].Content != "Better: Robins." || doc.Chapters[1].Title != "2" {
		t.Errorf("unexpected chapters %+v", doc.Chapters)
	}
	if doc.Cover == nil {
		t.Error("expected a cover with diagramming on")
	}
	for _, req := range gen.enhanceReqs {
		if req.Style != generate.MoreDidactic || req.Language != generate.English {
			t.Errorf("unexpected enhance request %+v", req)
		}
	}
	if job.TakeFileData() != nil {
		t.Error("expected the upload to be released")
	}
}

func TestEnhance_UnsupportedFormat(t *testing.T) {
	gen := &fakeGen{}
	snap := runJob(t, gen, enhanceJob("slides.pptx", "x", Params{}))
	if snap.Status != StatusFailed || snap.Phase != "parsing" {
		t.Fatalf("expected parse failure, got %q/%q", snap.Status, snap.Phase)
	}
	if !strings.Contains(snap.Progress.Errors[0], parser.ErrUnsupportedFormat.Error()) {
		t.Errorf("expected unsupported format error, got %v", snap.Progress.Errors)
	}
	if gen.Calls("structure") != 0 {
		t.Error("expected no generation calls")
	}
}

func TestEnhance_SectionsStructuredInOrder(t *testing.T) {
	var body strings.Builder
	for i := range 3 {
		fmt.Fprintf(&body, "# Part %d\n\n%s\n\n", i, strings.Repeat("word ", 300))
	}
	gen := &fakeGen{
		structure: func(text string) (generate.Structured, error) {
			title := strings.TrimPrefix(strings.SplitN(text, "\n", 2)[0], "# ")
			return generate.Structured{Title: "Book " + title, Chapters: []generate.StructuredChapter{{Title: title, Content: "c"}}}, nil
		},
	}
	job := enhanceJob("parts.md", body.String(), Params{})
	w := NewWorker(gen, testLogger(), fastRetry(), chunker.Config{ChunkSize: 450, ChunkOverlap: 10, MinChunk: 10}, parser.Options{})
	w.Process(context.Background(), job)

	doc, err := job.ExportDocument()
	if err != nil {
		t.Fatalf("unexpected error: %v (%v)", err, job.Snapshot().Progress.Errors)
	}
	if gen.Calls("structure") != 3 {
		t.Errorf("expected one structuring call per section, got %d", gen.Calls("structure"))
	}
	if doc.Title != "Book Part 0" {
		t.Errorf("expected the first section's title, got %q", doc.Title)
	}
	for i, ch := range doc.Chapters {
		if ch.Title != fmt.Sprintf("Part %d", i) {
			t.Errorf("chapter %d out of order: %q", i, ch.Title)
		}
	}
}

func TestMergeChapters(t *testing.T) {
	prev := []generate.StructuredChapter{{Title: "A", Content: "a1"}}
	next := []generate.StructuredChapter{{Title: "a", Content: "a2"}, {Title: "B", Content: "b"}}
	got := mergeChapters(prev, next)
	want := []generate.StructuredChapter{{Title: "A", Content: "a1\n\na2"}, {Title: "B", Content: "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if got := mergeChapters(nil, next); len(got) != 2 {
		t.Errorf("expected 2 chapters, got %d", len(got))
	}
}
