package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
	"github.com/gvmoraes79/FabricaEbook/internal/layout"
)

// ErrNotReady is returned for reads of a job that has no document yet.
var ErrNotReady = errors.New("e-book is not ready yet")

// JobKind says which flow builds the book.
type JobKind string

const (
	KindCreate  JobKind = "create"
	KindEnhance JobKind = "enhance"
)

// JobStatus represents the state of a generation job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusParsing     JobStatus = "parsing"
	StatusOutlining   JobStatus = "outlining"
	StatusStructuring JobStatus = "structuring"
	StatusCover       JobStatus = "cover"
	StatusWriting     JobStatus = "writing"
	StatusReferences  JobStatus = "references"
	StatusCompleted   JobStatus = "completed"
	StatusPartial     JobStatus = "partial"
	StatusFailed      JobStatus = "failed"
)

// Terminal reports whether no further work will happen on the job.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// Params are the user's choices for one book.
type Params struct {
	Topic         string            `json:"topic,omitempty"`
	MinPages      int               `json:"min_pages,omitempty"`
	MaxPages      int               `json:"max_pages,omitempty"`
	Language      generate.Language `json:"language"`
	IncludeImages bool              `json:"include_images"`
	Diagramming   bool              `json:"diagramming"`
	Notes         string            `json:"observations,omitempty"`
	Style         generate.Style    `json:"style,omitempty"`
	Filename      string            `json:"filename,omitempty"`
}

// Job tracks the state of a single e-book build.
type Job struct {
	mu sync.Mutex

	ID     string    `json:"job_id"`
	Kind   JobKind   `json:"kind"`
	Params Params    `json:"params"`
	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	credential string
	fileData   []byte
	book       *ebook.Builder
	errors     []string
	warnings   []string
}

// Progress tracks processing progress.
type Progress struct {
	ChaptersTotal int      `json:"chapters_total"`
	ChaptersDone  int      `json:"chapters_done"`
	Images        int      `json:"images"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
}

// NewJob returns a queued job. credential is the generation key sent with
// the request; empty means the service default.
func NewJob(kind JobKind, params Params, credential string) *Job {
	now := time.Now()
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Params:     params,
		Status:     StatusQueued,
		Phase:      "queued",
		CreatedAt:  now,
		UpdatedAt:  now,
		credential: credential,
	}
}

// JobStore is an in-memory job registry. Jobs expire ttl after they were
// last stored; the cache's janitor evicts them.
type JobStore struct {
	c *cache.Cache
}

func NewJobStore(ttl time.Duration) *JobStore {
	cleanup := max(ttl/2, time.Second)
	return &JobStore{c: cache.New(ttl, cleanup)}
}

// Put stores job and restarts its TTL.
func (s *JobStore) Put(job *Job) {
	s.c.SetDefault(job.ID, job)
}

func (s *JobStore) Get(id string) *Job {
	v, ok := s.c.Get(id)
	if !ok {
		return nil
	}
	return v.(*Job)
}

func (s *JobStore) Len() int { return s.c.ItemCount() }

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records a failure that lost content.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// AddWarning records an optional element that was left out.
func (j *Job) AddWarning(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.warnings = append(j.warnings, msg)
	j.UpdatedAt = time.Now()
}

func (j *Job) SetChaptersTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChaptersTotal = n
	j.UpdatedAt = time.Now()
}

func (j *Job) IncrChaptersDone() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChaptersDone++
	j.UpdatedAt = time.Now()
}

func (j *Job) IncrImages() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Images++
	j.UpdatedAt = time.Now()
}

// SetFileData sets the uploaded file for enhance jobs.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// TakeFileData returns the uploaded file and drops the job's reference.
func (j *Job) TakeFileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	data := j.fileData
	j.fileData = nil
	return data
}

func (j *Job) Credential() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.credential
}

func (j *Job) setBook(b *ebook.Builder) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.book = b
	j.UpdatedAt = time.Now()
}

func (j *Job) builder() *ebook.Builder {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.book
}

// Document returns a snapshot of the book as generated so far. It fails
// with ErrNotReady before the first generation step has produced a title.
func (j *Job) Document() (ebook.Document, error) {
	b := j.builder()
	if b == nil {
		return ebook.Document{}, ErrNotReady
	}
	return b.Snapshot(), nil
}

// ExportDocument is Document restricted to finished jobs, so exports never
// show a half-written book.
func (j *Job) ExportDocument() (ebook.Document, error) {
	j.mu.Lock()
	status := j.Status
	j.mu.Unlock()
	if status != StatusCompleted && status != StatusPartial {
		return ebook.Document{}, ErrNotReady
	}
	return j.Document()
}

// EditChapter replaces chapter i's text. The new document replaces the old
// one as a whole; snapshots already taken are unaffected.
func (j *Job) EditChapter(i int, content string) (ebook.Document, error) {
	j.mu.Lock()
	status := j.Status
	j.mu.Unlock()
	if status != StatusCompleted && status != StatusPartial {
		return ebook.Document{}, ErrNotReady
	}
	b := j.builder()
	if b == nil {
		return ebook.Document{}, ErrNotReady
	}
	doc, err := b.Update(func(d ebook.Document) (ebook.Document, error) {
		return d.WithChapterContent(i, content)
	})
	if err != nil {
		return ebook.Document{}, err
	}
	j.mu.Lock()
	j.UpdatedAt = time.Now()
	j.mu.Unlock()
	return doc, nil
}

// Policy adapts base to this job: labels in the book's language and the
// cover and contents pages only when diagramming was asked for.
func (j *Job) Policy(base layout.Policy) layout.Policy {
	p := j.Params.Language.Localize(base)
	p.Diagramming = j.Params.Diagramming
	return p
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Title     string    `json:"title,omitempty"`
	Params    Params    `json:"params"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := JobSnapshot{
		ID:        j.ID,
		Kind:      j.Kind,
		Status:    j.Status,
		Phase:     j.Phase,
		Params:    j.Params,
		Progress:  j.Progress,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	snap.Progress.Errors = append([]string{}, j.errors...)
	snap.Progress.Warnings = append([]string{}, j.warnings...)
	if j.book != nil {
		snap.Title = j.book.Title()
	}
	return snap
}
