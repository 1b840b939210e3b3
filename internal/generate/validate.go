package generate

import (
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

const maxOutlineChapters = 40

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func decodeJSON(op, text string, v any) error {
	if err := json.Unmarshal([]byte(stripCodeBlock(text)), v); err != nil {
		return malformed(op, text, err)
	}
	return nil
}

// SplitImagePrompt separates chapter text from a trailing image prompt. The
// marker is optional; without it the whole text is content.
func SplitImagePrompt(text string) (content, imagePrompt string) {
	before, after, found := strings.Cut(text, ImagePromptMarker)
	if !found {
		return strings.TrimSpace(text), ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

// CleanSources keeps absolute http(s) URIs, trimmed and in first-seen order
// without duplicates.
func CleanSources(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ValidateOutline trims the outline and drops empty or repeated chapter
// titles.
func ValidateOutline(o Outline) (Outline, error) {
	o.Title = strings.TrimSpace(o.Title)
	if o.Title == "" {
		return Outline{}, malformed("outline", "", errors.New("missing title"))
	}
	seen := map[string]bool{}
	chapters := o.Chapters[:0:0]
	for _, ch := range o.Chapters {
		ch = strings.TrimSpace(ch)
		key := strings.ToLower(ch)
		if ch == "" || seen[key] {
			continue
		}
		seen[key] = true
		chapters = append(chapters, ch)
	}
	if len(chapters) == 0 {
		return Outline{}, malformed("outline", "", errors.New("no chapters"))
	}
	if len(chapters) > maxOutlineChapters {
		chapters = chapters[:maxOutlineChapters]
	}
	o.Chapters = chapters
	return o, nil
}

func validateStructured(s Structured) (Structured, error) {
	s.Title = strings.TrimSpace(s.Title)
	if s.Title == "" {
		return Structured{}, malformed("structure", "", errors.New("missing title"))
	}
	var chapters []StructuredChapter
	for _, ch := range s.Chapters {
		ch.Title = strings.TrimSpace(ch.Title)
		ch.Content = strings.TrimSpace(ch.Content)
		if ch.Title == "" && ch.Content == "" {
			continue
		}
		chapters = append(chapters, ch)
	}
	if len(chapters) == 0 {
		return Structured{}, malformed("structure", "", errors.New("no chapters"))
	}
	s.Chapters = chapters
	return s, nil
}

// validateSelection keeps only picks that exist in the candidate list, so a
// model cannot invent a reference.
func validateSelection(picked, candidates []string, limit int) ([]string, error) {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c] = true
	}
	var out []string
	for _, p := range CleanSources(picked) {
		if known[p] {
			out = append(out, p)
		}
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, malformed("select_references", strings.Join(picked, ", "), errors.New("no known sources selected"))
	}
	return out, nil
}
