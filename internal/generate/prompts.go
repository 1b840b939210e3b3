package generate

import (
	"fmt"
	"math"
	"strings"
)

// ImagePromptMarker separates chapter text from the image prompt the model
// is asked to append.
const ImagePromptMarker = "IMAGE_PROMPT:"

// ChapterCount sizes the thematic outline for a target page range, assuming
// about 400 words per page and 800 words per chapter. Never fewer than 3.
func ChapterCount(minPages, maxPages int) int {
	avg := math.Ceil(float64(minPages+maxPages) / 2)
	return max(3, int(math.Ceil(avg*400/800)))
}

func notes(prefix, s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return fmt.Sprintf("\n\n%s: %q", prefix, s)
}

func outlinePrompt(req OutlineRequest, chapters int) string {
	return fmt.Sprintf(`Your task is to create a detailed outline for an e-book on the topic: %q.
The target audience is the general public.
To achieve a length between %d and %d pages, generate exactly %d thematic chapter titles.
Do not include an introduction or a conclusion in this list.
The entire response must be in %s.%s
You must respond with a JSON object.`,
		req.Topic, req.MinPages, req.MaxPages, chapters, req.Language, notes("Additional instructions from the user", req.Notes))
}

func imageInstruction() string {
	return fmt.Sprintf("\n\nAfter the content, on a new line, add the text %q followed by a concise, descriptive and visually rich prompt (in English) for an AI image generator that captures the essence of this chapter.", ImagePromptMarker)
}

func chapterPrompt(req ChapterRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the chapter %q for the e-book %q in %s. Approximately 800-1000 words.", req.ChapterTitle, req.BookTitle, req.Language)
	sb.WriteString("\nUse \"## \" and \"### \" for section headings, \"**\" for emphasis and a blank line between paragraphs. Do not repeat the chapter title.")
	sb.WriteString(notes("Additional instructions", req.Notes))
	if req.WantImage {
		sb.WriteString(imageInstruction())
	}
	return sb.String()
}

func coverPromptPrompt(title, topic string) string {
	return fmt.Sprintf(`Create a single, concise and visually rich prompt (in English) for an AI image generator to create a stunning and professional e-book cover.
E-book title: %q
Main topic: %q
The cover should be high quality, visually striking and clearly represent the main topic. Avoid including any text in the image itself.
Just return the prompt text, nothing else.`, title, topic)
}

func topReferencesPrompt(refs []string, topic string, language Language, limit int) string {
	return fmt.Sprintf("Select the top %d most relevant and reliable sources for an e-book on %q written in %s. Only choose from this list, copying each URL exactly:\n%s\nRespond with a JSON object.",
		limit, topic, language, strings.Join(refs, "\n"))
}

func structurePrompt(text string) string {
	return "Structure the following text into an e-book: give it a title and split it into chapters, each with a title and its content. Keep the original wording. Respond with a JSON object.\n\n---\n" + text
}

func styleInstruction(s Style) string {
	switch s {
	case MoreFormal:
		return "Rewrite it in a formal tone."
	case MoreCasual:
		return "Rewrite it in a casual tone."
	case MoreDidactic:
		return "Rewrite it in a didactic tone, explaining concepts step by step."
	}
	return "Correct grammar and improve clarity without changing the tone."
}

func enhancePrompt(req EnhanceRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Enhance the chapter %q. %s Write the result in %s.", req.Title, styleInstruction(req.Style), req.Language)
	sb.WriteString("\nUse \"## \" and \"### \" for section headings, \"**\" for emphasis and a blank line between paragraphs.")
	if req.WantImage {
		sb.WriteString(imageInstruction())
	}
	sb.WriteString("\n\n---\n")
	sb.WriteString(req.Content)
	return sb.String()
}

var (
	outlineSchema = map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"title":    map[string]any{"type": "STRING"},
			"chapters": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		},
		"required": []string{"title", "chapters"},
	}
	topReferencesSchema = map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"top_sources": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		},
		"required": []string{"top_sources"},
	}
	structureSchema = map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"title": map[string]any{"type": "STRING"},
			"chapters": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"title":   map[string]any{"type": "STRING"},
						"content": map[string]any{"type": "STRING"},
					},
					"required": []string{"title", "content"},
				},
			},
		},
		"required": []string{"title", "chapters"},
	}
)
