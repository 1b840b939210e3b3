package ebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNoTitle      = errors.New("document has no title")
	ErrNoContent    = errors.New("document has no text content")
	ErrChapterIndex = errors.New("chapter index out of range")
)

// Document is the canonical in-memory e-book. Values are treated as immutable
// snapshots: edits go through the With* methods, which return a new Document
// and never touch the receiver's chapters or references.
type Document struct {
	Title      string       `json:"title"`
	Topic      string       `json:"topic"`
	Chapters   []Chapter    `json:"chapters"`
	References ReferenceSet `json:"references"`
	Cover      *Image       `json:"cover,omitempty"`
}

// Chapter is one unit of reading order.
type Chapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Image   *Image `json:"image,omitempty"`
}

// Validate reports whether the document can be exported at all.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrNoTitle
	}
	for _, ch := range d.Chapters {
		if strings.TrimSpace(ch.Content) != "" || strings.TrimSpace(ch.Title) != "" {
			return nil
		}
	}
	return ErrNoContent
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{
		Title:      d.Title,
		Topic:      d.Topic,
		References: d.References.Clone(),
		Cover:      d.Cover.clone(),
	}
	if d.Chapters != nil {
		out.Chapters = make([]Chapter, len(d.Chapters))
		for i, ch := range d.Chapters {
			out.Chapters[i] = Chapter{Title: ch.Title, Content: ch.Content, Image: ch.Image.clone()}
		}
	}
	return out
}

// WithChapterContent returns a copy of d whose chapter i has new content.
func (d Document) WithChapterContent(i int, content string) (Document, error) {
	if i < 0 || i >= len(d.Chapters) {
		return Document{}, fmt.Errorf("%w: %d (have %d)", ErrChapterIndex, i, len(d.Chapters))
	}
	chapters := make([]Chapter, len(d.Chapters))
	copy(chapters, d.Chapters)
	chapters[i].Content = content
	out := d
	out.Chapters = chapters
	return out, nil
}

// WithChapter returns a copy of d with ch appended.
func (d Document) WithChapter(ch Chapter) Document {
	chapters := make([]Chapter, len(d.Chapters), len(d.Chapters)+1)
	copy(chapters, d.Chapters)
	out := d
	out.Chapters = append(chapters, ch)
	return out
}

// WithReferences returns a copy of d with refs added to its reference set.
func (d Document) WithReferences(refs ...string) Document {
	out := d
	out.References = d.References.Clone()
	out.References.Add(refs...)
	return out
}

// ReferenceSet holds source URIs with set semantics. The zero value is an
// empty set ready to use.
type ReferenceSet struct {
	m map[string]struct{}
}

// NewReferenceSet returns a set containing refs.
func NewReferenceSet(refs ...string) ReferenceSet {
	var s ReferenceSet
	s.Add(refs...)
	return s
}

// Add inserts refs, ignoring blanks and duplicates.
func (s *ReferenceSet) Add(refs ...string) {
	for _, r := range refs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if s.m == nil {
			s.m = make(map[string]struct{})
		}
		s.m[r] = struct{}{}
	}
}

func (s ReferenceSet) Len() int { return len(s.m) }

func (s ReferenceSet) Contains(ref string) bool {
	_, ok := s.m[strings.TrimSpace(ref)]
	return ok
}

// Sorted materializes the set in lexicographic order.
func (s ReferenceSet) Sorted() []string {
	out := make([]string, 0, len(s.m))
	for r := range s.m {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (s ReferenceSet) Clone() ReferenceSet {
	return NewReferenceSet(s.Sorted()...)
}

func (s ReferenceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *ReferenceSet) UnmarshalJSON(data []byte) error {
	var refs []string
	if err := json.Unmarshal(data, &refs); err != nil {
		return err
	}
	*s = NewReferenceSet(refs...)
	return nil
}
