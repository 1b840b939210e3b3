// Package generate talks to the remote text and image models that write an
// e-book. Every call is a single attempt; retry policy belongs to the caller,
// which can tell transient failures apart with IsRetryable.
package generate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
)

type OutlineRequest struct {
	Topic    string
	MinPages int
	MaxPages int
	Language Language
	Notes    string
}

type Outline struct {
	Title    string   `json:"title"`
	Chapters []string `json:"chapters"`
}

type ChapterRequest struct {
	BookTitle    string
	ChapterTitle string
	Language     Language
	WantImage    bool
	Notes        string
}

// ChapterResult is generated chapter text. ImagePrompt is set only when an
// image was requested and the model supplied a prompt for it.
type ChapterResult struct {
	Content     string
	Sources     []string
	ImagePrompt string
}

type EnhanceRequest struct {
	Title     string
	Content   string
	Style     Style
	Language  Language
	WantImage bool
}

type Structured struct {
	Title    string              `json:"title"`
	Chapters []StructuredChapter `json:"chapters"`
}

type StructuredChapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Generator is the generation collaborator used by the orchestrator.
type Generator interface {
	Outline(ctx context.Context, req OutlineRequest) (Outline, error)
	ChapterContent(ctx context.Context, req ChapterRequest) (ChapterResult, error)
	Image(ctx context.Context, prompt string) (*ebook.Image, error)
	CoverImage(ctx context.Context, title, topic string) (*ebook.Image, error)
	SelectTopReferences(ctx context.Context, refs []string, topic string, language Language, limit int) ([]string, error)
	StructureText(ctx context.Context, text string) (Structured, error)
	EnhanceChapter(ctx context.Context, req EnhanceRequest) (ChapterResult, error)
}

// call is one text request to a backend.
type call struct {
	prompt string
	// schema asks for JSON output of that shape.
	schema map[string]any
	// grounded enables web search so the reply can cite sources.
	grounded bool
}

type reply struct {
	text    string
	sources []string
}

type completer interface {
	complete(ctx context.Context, c call) (reply, error)
}

type imager interface {
	image(ctx context.Context, prompt string) ([]byte, error)
}

// Client implements Generator on top of a backend. img is nil for backends
// without image output.
type Client struct {
	name  string
	text  completer
	img   imager
	stats *LLMStats
	close func()
}

var _ Generator = (*Client)(nil)

func (c *Client) Name() string { return c.name }

// SupportsImages reports whether the backend can draw chapter and cover
// images.
func (c *Client) SupportsImages() bool { return c.img != nil }

// Close releases idle connections.
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

func (c *Client) do(ctx context.Context, op string, cl call) (reply, error) {
	start := time.Now()
	r, err := c.text.complete(ctx, cl)
	c.stats.Record(op, time.Since(start), err)
	return r, err
}

func (c *Client) Outline(ctx context.Context, req OutlineRequest) (Outline, error) {
	n := ChapterCount(req.MinPages, req.MaxPages)
	r, err := c.do(ctx, "outline", call{prompt: outlinePrompt(req, n), schema: outlineSchema})
	if err != nil {
		return Outline{}, err
	}
	var o Outline
	if err := decodeJSON("outline", r.text, &o); err != nil {
		return Outline{}, err
	}
	return ValidateOutline(o)
}

func (c *Client) ChapterContent(ctx context.Context, req ChapterRequest) (ChapterResult, error) {
	r, err := c.do(ctx, "chapter", call{prompt: chapterPrompt(req), grounded: true})
	if err != nil {
		return ChapterResult{}, err
	}
	return chapterResult("chapter", r, req.WantImage)
}

func (c *Client) EnhanceChapter(ctx context.Context, req EnhanceRequest) (ChapterResult, error) {
	r, err := c.do(ctx, "enhance", call{prompt: enhancePrompt(req), grounded: true})
	if err != nil {
		return ChapterResult{}, err
	}
	return chapterResult("enhance", r, req.WantImage)
}

func chapterResult(op string, r reply, wantImage bool) (ChapterResult, error) {
	content, prompt := strings.TrimSpace(r.text), ""
	if wantImage {
		content, prompt = SplitImagePrompt(r.text)
	}
	if content == "" {
		return ChapterResult{}, malformed(op, r.text, errors.New("empty content"))
	}
	return ChapterResult{Content: content, Sources: CleanSources(r.sources), ImagePrompt: prompt}, nil
}

func (c *Client) Image(ctx context.Context, prompt string) (*ebook.Image, error) {
	if c.img == nil {
		return nil, ErrImagesUnsupported
	}
	start := time.Now()
	data, err := c.img.image(ctx, prompt)
	c.stats.Record("image", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	img, err := ebook.DecodeImage(data)
	if err != nil {
		return nil, malformed("image", "", err)
	}
	return img, nil
}

// CoverImage asks the text model for a cover prompt, then draws it.
func (c *Client) CoverImage(ctx context.Context, title, topic string) (*ebook.Image, error) {
	if c.img == nil {
		return nil, ErrImagesUnsupported
	}
	r, err := c.do(ctx, "cover_prompt", call{prompt: coverPromptPrompt(title, topic)})
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(r.text)
	if prompt == "" {
		return nil, malformed("cover_prompt", r.text, errors.New("empty prompt"))
	}
	return c.Image(ctx, prompt)
}

// SelectTopReferences returns refs unchanged when there are at most limit of
// them. Otherwise the model picks; only picks present in refs are kept.
func (c *Client) SelectTopReferences(ctx context.Context, refs []string, topic string, language Language, limit int) ([]string, error) {
	if len(refs) <= limit {
		return refs, nil
	}
	r, err := c.do(ctx, "select_references", call{prompt: topReferencesPrompt(refs, topic, language, limit), schema: topReferencesSchema})
	if err != nil {
		return nil, err
	}
	var out struct {
		TopSources []string `json:"top_sources"`
	}
	if err := decodeJSON("select_references", r.text, &out); err != nil {
		return nil, err
	}
	return validateSelection(out.TopSources, refs, limit)
}

func (c *Client) StructureText(ctx context.Context, text string) (Structured, error) {
	r, err := c.do(ctx, "structure", call{prompt: structurePrompt(text), schema: structureSchema})
	if err != nil {
		return Structured{}, err
	}
	var s Structured
	if err := decodeJSON("structure", r.text, &s); err != nil {
		return Structured{}, err
	}
	return validateStructured(s)
}
