package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
	"github.com/gvmoraes79/FabricaEbook/internal/parser"
	"github.com/gvmoraes79/FabricaEbook/internal/pipeline"
	"github.com/gvmoraes79/FabricaEbook/internal/render"
)

type createRequest struct {
	Topic         string `json:"topic"`
	MinPages      int    `json:"min_pages"`
	MaxPages      int    `json:"max_pages"`
	Language      string `json:"language"`
	IncludeImages *bool  `json:"include_images"`
	Diagramming   *bool  `json:"diagramming"`
	Observations  string `json:"observations"`
}

// params validates the request. Images and diagramming default to on.
func (req createRequest) params() (pipeline.Params, error) {
	p := pipeline.Params{
		Topic:         strings.TrimSpace(req.Topic),
		MinPages:      req.MinPages,
		MaxPages:      req.MaxPages,
		IncludeImages: req.IncludeImages == nil || *req.IncludeImages,
		Diagramming:   req.Diagramming == nil || *req.Diagramming,
		Notes:         strings.TrimSpace(req.Observations),
	}
	if p.Topic == "" {
		return p, errors.New("topic is required")
	}
	if p.MinPages < 1 || p.MaxPages < p.MinPages {
		return p, fmt.Errorf("page range must satisfy 1 <= min_pages <= max_pages, got %d-%d", p.MinPages, p.MaxPages)
	}
	lang, err := generate.ParseLanguage(req.Language)
	if err != nil {
		return p, err
	}
	p.Language = lang
	return p, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	params, err := req.params()
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.submit(w, r, pipeline.NewJob(pipeline.KindCreate, params, generationKey(r)), nil)
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusUnsupportedMediaType)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		jsonError(w, "file is empty", http.StatusUnprocessableEntity)
		return
	}

	params, err := enhanceParams(r, filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.submit(w, r, pipeline.NewJob(pipeline.KindEnhance, params, generationKey(r)), data)
}

func enhanceParams(r *http.Request, filename string) (pipeline.Params, error) {
	p := pipeline.Params{
		Filename: filename,
		Notes:    strings.TrimSpace(r.FormValue("observations")),
	}
	var err error
	if p.Style, err = generate.ParseStyle(r.FormValue("style")); err != nil {
		return p, err
	}
	if p.Language, err = generate.ParseLanguage(r.FormValue("language")); err != nil {
		return p, err
	}
	if p.IncludeImages, err = formBool(r, "include_images"); err != nil {
		return p, err
	}
	if p.Diagramming, err = formBool(r, "diagramming"); err != nil {
		return p, err
	}
	return p, nil
}

// formBool reads an optional boolean field; absent means false.
func formBool(r *http.Request, name string) (bool, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", name, v)
	}
	return b, nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, job *pipeline.Job, fileData []byte) {
	if !s.orchestrator.CanGenerate(job.Credential()) {
		jsonError(w, "no generation key: send "+GenerationKeyHeader+" or configure a default", http.StatusBadRequest)
		return
	}
	if fileData != nil {
		job.SetFileData(fileData)
	}
	if err := s.orchestrator.Submit(job); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("job submitted", "job_id", job.ID, "kind", job.Kind, "request_id", requestID(r))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/ebooks/%s/status", job.ID),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	snap := job.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   snap.ID,
		"kind":     snap.Kind,
		"title":    snap.Title,
		"status":   snap.Status,
		"phase":    snap.Phase,
		"progress": snap.Progress,
	})
}

// job looks up the path's job, answering 404 itself when it is gone.
func (s *Server) job(w http.ResponseWriter, r *http.Request) *pipeline.Job {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
	}
	return job
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, render.ErrRendererNotReady):
		w.Header().Set("Retry-After", "2")
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, pipeline.ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, pipeline.ErrNotReady):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, parser.ErrUnsupportedFormat):
		jsonError(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, ebook.ErrChapterIndex):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ebook.ErrNoTitle), errors.Is(err, ebook.ErrNoContent):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.log.Error("request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
