package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gvmoraes79/FabricaEbook/internal/chunker"
	"github.com/gvmoraes79/FabricaEbook/internal/doctree"
	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
	"github.com/gvmoraes79/FabricaEbook/internal/parser"
)

// TopReferences is how many sources a finished book keeps.
const TopReferences = 3

// Worker builds one e-book with a single generator.
type Worker struct {
	gen       generate.Generator
	log       *slog.Logger
	retry     RetryPolicy
	chunkCfg  chunker.Config
	parseOpts parser.Options

	maxConcurrentStructure int
}

func NewWorker(gen generate.Generator, log *slog.Logger, retry RetryPolicy, chunkCfg chunker.Config, parseOpts parser.Options) *Worker {
	return &Worker{
		gen:                    gen,
		log:                    log,
		retry:                  retry,
		chunkCfg:               chunkCfg,
		parseOpts:              parseOpts,
		maxConcurrentStructure: 3,
	}
}

// Process runs the job's flow to a terminal status.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "kind", job.Kind)
	log.Info("job started")
	switch job.Kind {
	case KindEnhance:
		w.enhance(ctx, job, log)
	default:
		w.create(ctx, job, log)
	}
	snap := job.Snapshot()
	log.Info("job finished", "status", snap.Status, "chapters", snap.Progress.ChaptersDone, "errors", len(snap.Progress.Errors))
}

func (w *Worker) imagesSupported() bool {
	s, ok := w.gen.(interface{ SupportsImages() bool })
	return !ok || s.SupportsImages()
}

// chapterTask produces one chapter's text.
type chapterTask struct {
	title string
	run   func(ctx context.Context, wantImage bool) (generate.ChapterResult, error)
}

func (w *Worker) create(ctx context.Context, job *Job, log *slog.Logger) {
	p := job.Params

	job.SetStatus(StatusOutlining, "outline")
	outline, err := Retry(ctx, w.retry, log, "outline", func(ctx context.Context) (generate.Outline, error) {
		return w.gen.Outline(ctx, generate.OutlineRequest{
			Topic:    p.Topic,
			MinPages: p.MinPages,
			MaxPages: p.MaxPages,
			Language: p.Language,
			Notes:    p.Notes,
		})
	})
	if err != nil {
		w.fail(job, log, "outline", err)
		return
	}
	log.Info("outline ready", "title", outline.Title, "chapters", len(outline.Chapters))

	book := ebook.NewBuilder(outline.Title, p.Topic)
	job.setBook(book)

	labels := p.Language.Labels()
	titles := make([]string, 0, len(outline.Chapters)+2)
	titles = append(titles, labels.Introduction)
	titles = append(titles, outline.Chapters...)
	titles = append(titles, labels.Conclusion)
	job.SetChaptersTotal(len(titles))

	if p.Diagramming {
		w.cover(ctx, job, log, book, outline.Title, p.Topic)
	}

	tasks := make([]chapterTask, len(titles))
	for i, title := range titles {
		tasks[i] = chapterTask{title: title, run: func(ctx context.Context, wantImage bool) (generate.ChapterResult, error) {
			return w.gen.ChapterContent(ctx, generate.ChapterRequest{
				BookTitle:    outline.Title,
				ChapterTitle: title,
				Language:     p.Language,
				WantImage:    wantImage,
				Notes:        p.Notes,
			})
		}}
	}
	failed := w.writeChapters(ctx, job, log, book, tasks)
	if ctx.Err() != nil {
		w.fail(job, log, "writing", ctx.Err())
		return
	}

	w.selectReferences(ctx, job, log, book, p)
	w.finish(job, log, book, failed)
}

func (w *Worker) enhance(ctx context.Context, job *Job, log *slog.Logger) {
	p := job.Params

	job.SetStatus(StatusParsing, "reading "+p.Filename)
	tree, err := parser.Parse(p.Filename, job.TakeFileData(), w.parseOpts)
	if err != nil {
		w.fail(job, log, "parsing", err)
		return
	}

	sections := chunker.ChunkTree(tree, w.chunkCfg)
	log.Info("document split", "sections", len(sections))
	job.SetStatus(StatusStructuring, fmt.Sprintf("structuring %d sections", len(sections)))
	structured, lost, err := w.structure(ctx, job, log, sections)
	if err != nil {
		w.fail(job, log, "structuring", err)
		return
	}

	book := ebook.NewBuilder(structured.Title, p.Filename)
	job.setBook(book)
	job.SetChaptersTotal(len(structured.Chapters))

	if p.Diagramming {
		w.cover(ctx, job, log, book, structured.Title, structured.Title)
	}

	tasks := make([]chapterTask, len(structured.Chapters))
	for i, ch := range structured.Chapters {
		title := ch.Title
		if title == "" {
			title = strconv.Itoa(i + 1)
		}
		tasks[i] = chapterTask{title: title, run: func(ctx context.Context, wantImage bool) (generate.ChapterResult, error) {
			return w.gen.EnhanceChapter(ctx, generate.EnhanceRequest{
				Title:     title,
				Content:   ch.Content,
				Style:     p.Style,
				Language:  p.Language,
				WantImage: wantImage,
			})
		}}
	}
	failed := w.writeChapters(ctx, job, log, book, tasks)
	if ctx.Err() != nil {
		w.fail(job, log, "writing", ctx.Err())
		return
	}
	w.finish(job, log, book, failed+lost)
}

// structure sends sections to the model with bounded concurrency and joins
// the answers in document order. The title comes from the first section
// that succeeds; lost counts sections that failed.
func (w *Worker) structure(ctx context.Context, job *Job, log *slog.Logger, sections []doctree.Section) (out generate.Structured, lost int, err error) {
	if len(sections) == 0 {
		return generate.Structured{}, 0, parser.ErrNoText
	}

	type result struct {
		s   generate.Structured
		err error
	}
	results := make([]result, len(sections))
	done := make(chan struct{}, len(sections))
	sem := make(chan struct{}, max(w.maxConcurrentStructure, 1))

	for i, sec := range sections {
		sem <- struct{}{}
		go func(i int, sec doctree.Section) {
			defer func() { <-sem; done <- struct{}{} }()
			s, err := Retry(ctx, w.retry, log, "structure", func(ctx context.Context) (generate.Structured, error) {
				return w.gen.StructureText(ctx, sec.Text)
			})
			results[i] = result{s: s, err: err}
		}(i, sec)
	}
	for range sections {
		<-done
	}

	var firstErr error
	for i, r := range results {
		if r.err != nil {
			lost++
			log.Error("structuring failed", "section", i, "error", r.err)
			job.AddError(fmt.Sprintf("section %d: %s", i+1, r.err))
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		if out.Title == "" {
			out.Title = r.s.Title
		}
		out.Chapters = mergeChapters(out.Chapters, r.s.Chapters)
	}
	if len(out.Chapters) == 0 {
		return generate.Structured{}, lost, firstErr
	}
	return out, lost, nil
}

// mergeChapters appends next to prev. A chapter cut by a section boundary
// comes back under the same title on both sides and is joined.
func mergeChapters(prev, next []generate.StructuredChapter) []generate.StructuredChapter {
	if len(prev) > 0 && len(next) > 0 {
		last := &prev[len(prev)-1]
		if last.Title != "" && strings.EqualFold(last.Title, next[0].Title) {
			last.Content = strings.TrimSpace(last.Content + "\n\n" + next[0].Content)
			next = next[1:]
		}
	}
	return append(prev, next...)
}

// writeChapters generates chapters in reading order and appends each as it
// arrives. A chapter that still fails after retries is left out and
// counted; a missing image never fails its chapter.
func (w *Worker) writeChapters(ctx context.Context, job *Job, log *slog.Logger, book *ebook.Builder, tasks []chapterTask) (failed int) {
	wantImages := job.Params.IncludeImages && w.imagesSupported()
	if job.Params.IncludeImages && !wantImages {
		job.AddWarning("the generation backend does not draw images; chapters have none")
	}

	for i, t := range tasks {
		if ctx.Err() != nil {
			return failed
		}
		job.SetStatus(StatusWriting, fmt.Sprintf("chapter %d/%d: %s", i+1, len(tasks), t.title))
		res, err := Retry(ctx, w.retry, log, "chapter", func(ctx context.Context) (generate.ChapterResult, error) {
			return t.run(ctx, wantImages)
		})
		if err != nil {
			if ctx.Err() != nil {
				return failed
			}
			log.Error("chapter failed", "chapter", t.title, "error", err)
			job.AddError(fmt.Sprintf("chapter %q: %s", t.title, err))
			failed++
			continue
		}

		ch := ebook.Chapter{Title: t.title, Content: res.Content}
		if wantImages && res.ImagePrompt != "" {
			ch.Image = w.image(ctx, job, log, "chapter "+strconv.Itoa(i+1), func(ctx context.Context) (*ebook.Image, error) {
				return w.gen.Image(ctx, res.ImagePrompt)
			})
		}
		book.AppendChapter(ch, res.Sources...)
		job.IncrChaptersDone()
	}
	return failed
}

func (w *Worker) cover(ctx context.Context, job *Job, log *slog.Logger, book *ebook.Builder, title, topic string) {
	if !w.imagesSupported() {
		job.AddWarning("the generation backend does not draw images; the book has no cover")
		return
	}
	job.SetStatus(StatusCover, "cover")
	img := w.image(ctx, job, log, "cover", func(ctx context.Context) (*ebook.Image, error) {
		return w.gen.CoverImage(ctx, title, topic)
	})
	book.SetCover(img)
}

// image runs an image call. Failure degrades to no image and a warning.
func (w *Worker) image(ctx context.Context, job *Job, log *slog.Logger, what string, fn func(context.Context) (*ebook.Image, error)) *ebook.Image {
	img, err := Retry(ctx, w.retry, log, "image", fn)
	if err != nil {
		log.Warn("image skipped", "for", what, "error", err)
		job.AddWarning(fmt.Sprintf("%s: no image (%s)", what, err))
		return nil
	}
	job.IncrImages()
	return img
}

// selectReferences keeps the most relevant sources. If the model cannot
// choose, the first ones in sorted order are kept.
func (w *Worker) selectReferences(ctx context.Context, job *Job, log *slog.Logger, book *ebook.Builder, p Params) {
	refs := book.References()
	if len(refs) <= TopReferences {
		return
	}
	job.SetStatus(StatusReferences, fmt.Sprintf("selecting %d of %d references", TopReferences, len(refs)))
	top, err := Retry(ctx, w.retry, log, "select_references", func(ctx context.Context) ([]string, error) {
		return w.gen.SelectTopReferences(ctx, refs, p.Topic, p.Language, TopReferences)
	})
	if err != nil {
		log.Warn("reference selection failed, keeping first sources", "error", err)
		job.AddWarning(fmt.Sprintf("references: %s", err))
		top = refs[:TopReferences]
	}
	book.ReplaceReferences(top...)
}

func (w *Worker) finish(job *Job, log *slog.Logger, book *ebook.Builder, failed int) {
	switch {
	case book.ChapterCount() == 0:
		w.fail(job, log, "writing", errors.New("no chapter could be generated"))
	case failed > 0:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

func (w *Worker) fail(job *Job, log *slog.Logger, phase string, err error) {
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
}
