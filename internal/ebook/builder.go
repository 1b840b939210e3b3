package ebook

import "sync"

// Builder assembles a Document incrementally while generation streams in.
// It is safe for concurrent use; readers take Snapshots, which never alias
// the builder's internal state.
type Builder struct {
	mu  sync.Mutex
	doc Document
}

func NewBuilder(title, topic string) *Builder {
	return &Builder{doc: Document{Title: title, Topic: topic}}
}

// SetCover records the cover image. A nil image clears it.
func (b *Builder) SetCover(img *Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc.Cover = img
}

// AppendChapter adds a chapter at the end of reading order and merges its
// sources into the reference set.
func (b *Builder) AppendChapter(ch Chapter, sources ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc.Chapters = append(b.doc.Chapters, ch)
	b.doc.References.Add(sources...)
}

// ReplaceReferences swaps the whole reference set, e.g. after selecting the
// top sources.
func (b *Builder) ReplaceReferences(refs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc.References = NewReferenceSet(refs...)
}

func (b *Builder) References() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.References.Sorted()
}

func (b *Builder) Title() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Title
}

func (b *Builder) ChapterCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.doc.Chapters)
}

// Update applies fn to a copy of the current document and installs the
// result, all under one lock, so concurrent edits never overwrite each
// other. On error nothing changes.
func (b *Builder) Update(fn func(Document) (Document, error)) (Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := fn(b.doc.Clone())
	if err != nil {
		return Document{}, err
	}
	b.doc = doc.Clone()
	return doc, nil
}

// Snapshot returns a deep copy of the document as it stands.
func (b *Builder) Snapshot() Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Clone()
}
