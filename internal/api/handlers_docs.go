package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/render"
)

// documentView is a document as JSON clients see it. Image bytes stay on
// the server; only their presence is reported.
type documentView struct {
	Title      string        `json:"title"`
	Topic      string        `json:"topic"`
	HasCover   bool          `json:"has_cover"`
	Chapters   []chapterView `json:"chapters"`
	References []string      `json:"references"`
}

type chapterView struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	HasImage bool   `json:"has_image"`
}

func newDocumentView(doc ebook.Document) documentView {
	v := documentView{
		Title:      doc.Title,
		Topic:      doc.Topic,
		HasCover:   doc.Cover != nil,
		Chapters:   make([]chapterView, len(doc.Chapters)),
		References: doc.References.Sorted(),
	}
	for i, ch := range doc.Chapters {
		v.Chapters[i] = chapterView{Index: i, Title: ch.Title, Content: ch.Content, HasImage: ch.Image != nil}
	}
	if v.References == nil {
		v.References = []string{}
	}
	return v
}

// handleDocument returns the book as generated so far; it is complete once
// the job's status is terminal.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	doc, err := job.Document()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   job.ID,
		"status":   job.Snapshot().Status,
		"document": newDocumentView(doc),
	})
}

type editRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleEditChapter(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		jsonError(w, "chapter index must be an integer", http.StatusBadRequest)
		return
	}
	var req editRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		jsonError(w, "content is required", http.StatusUnprocessableEntity)
		return
	}

	doc, err := job.EditChapter(index, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.orchestrator.Touch(job)
	s.log.Info("chapter edited", "job_id", job.ID, "chapter", index)
	writeJSON(w, http.StatusOK, newDocumentView(doc))
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	doc, err := job.ExportDocument()
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := s.renderer.RenderWith(doc, job.Policy(s.renderer.Policy()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("pdf exported", "job_id", job.ID, "bytes", len(data))
	attachment(w, "application/pdf", render.Filename(doc.Title, "pdf"))
	_, _ = w.Write(data)
}

func (s *Server) handleExportText(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	doc, err := job.ExportDocument()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := doc.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	attachment(w, "text/plain; charset=utf-8", render.Filename(doc.Title, "txt"))
	_, _ = io.WriteString(w, render.RenderPlainText(doc))
}

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
}
