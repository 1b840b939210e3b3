package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
)

// bookFile is the CLI's document format. Images are file paths relative to
// the JSON file.
type bookFile struct {
	Title      string        `json:"title"`
	Topic      string        `json:"topic"`
	Cover      string        `json:"cover,omitempty"`
	Chapters   []chapterFile `json:"chapters"`
	References []string      `json:"references,omitempty"`
}

type chapterFile struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

func readBook(path string) (ebook.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ebook.Document{}, err
	}
	var bf bookFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return ebook.Document{}, fmt.Errorf("decode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	b := ebook.NewBuilder(bf.Title, bf.Topic)
	if bf.Cover != "" {
		img, err := readImage(dir, bf.Cover)
		if err != nil {
			return ebook.Document{}, fmt.Errorf("cover: %w", err)
		}
		b.SetCover(img)
	}
	for i, ch := range bf.Chapters {
		c := ebook.Chapter{Title: ch.Title, Content: ch.Content}
		if ch.Image != "" {
			img, err := readImage(dir, ch.Image)
			if err != nil {
				return ebook.Document{}, fmt.Errorf("chapter %d image: %w", i+1, err)
			}
			c.Image = img
		}
		b.AppendChapter(c)
	}
	b.ReplaceReferences(bf.References...)

	doc := b.Snapshot()
	if err := doc.Validate(); err != nil {
		return ebook.Document{}, err
	}
	return doc, nil
}

func readImage(dir, name string) (*ebook.Image, error) {
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return ebook.DecodeImage(data)
}
