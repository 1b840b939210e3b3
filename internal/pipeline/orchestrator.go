// Package pipeline runs e-book generation jobs on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gvmoraes79/FabricaEbook/internal/chunker"
	"github.com/gvmoraes79/FabricaEbook/internal/config"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
	"github.com/gvmoraes79/FabricaEbook/internal/parser"
)

var (
	ErrQueueFull    = errors.New("job queue is full")
	ErrNoCredential = errors.New("no generation API key configured or supplied")
)

// GeneratorFactory builds the generator for one job from the credential
// that came with the request. An empty credential selects the default.
type GeneratorFactory func(credential string) (generate.Generator, error)

// NewGeneratorFactory returns a factory for the configured backend. No key
// is held anywhere but in the generators it returns.
func NewGeneratorFactory(cfg config.Config, stats *generate.LLMStats) GeneratorFactory {
	return func(credential string) (generate.Generator, error) {
		key := credential
		if key == "" {
			key = cfg.DefaultGenerationKey()
		}
		if key == "" {
			return nil, ErrNoCredential
		}
		if cfg.GenerationBackend == config.BackendClaude {
			return generate.NewClaude(generate.ClaudeConfig{
				APIKey:  key,
				Model:   cfg.AnthropicModel,
				Timeout: cfg.GenerationTimeout,
			}, stats), nil
		}
		return generate.NewGemini(generate.GeminiConfig{
			APIKey:     key,
			BaseURL:    cfg.GeminiBaseURL,
			TextModel:  cfg.GeminiTextModel,
			ImageModel: cfg.GeminiImageModel,
			Timeout:    cfg.GenerationTimeout,
		}, stats), nil
	}
}

// Orchestrator manages the generation queue and its workers.
type Orchestrator struct {
	jobs      *JobStore
	queue     chan *Job
	newGen    GeneratorFactory
	log       *slog.Logger
	cfg       config.Config
	retry     RetryPolicy
	chunkCfg  chunker.Config
	parseOpts parser.Options

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrchestrator(cfg config.Config, newGen GeneratorFactory, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.MaxQueueSize),
		newGen: newGen,
		log:    log,
		cfg:    cfg,
		retry: RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		chunkCfg: chunker.Config{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
		},
		parseOpts: parser.Options{PDFFallback: cfg.PDFFallbackPdftotext},
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range max(o.cfg.WorkerCount, 1) {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job := <-o.queue:
					o.run(workerCtx, job)
				}
			}
		}()
	}
}

func (o *Orchestrator) run(ctx context.Context, job *Job) {
	defer o.jobs.Put(job) // restart the TTL from completion
	gen, err := o.newGen(job.Credential())
	if err != nil {
		o.log.Error("no generator for job", "job_id", job.ID, "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "starting")
		return
	}
	if c, ok := gen.(interface{ Close() }); ok {
		defer c.Close()
	}
	NewWorker(gen, o.log, o.retry, o.chunkCfg, o.parseOpts).Process(ctx, job)
}

// Stop cancels running jobs and waits for the workers to exit. Jobs still
// queued stay queued until they expire.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.AddError(ErrQueueFull.Error())
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID, or nil once it expired.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Touch restarts a job's TTL, e.g. after an edit.
func (o *Orchestrator) Touch(job *Job) {
	o.jobs.Put(job)
}

// CanGenerate reports whether a job with this credential would get a
// generator.
func (o *Orchestrator) CanGenerate(credential string) bool {
	return credential != "" || o.cfg.DefaultGenerationKey() != ""
}

func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// ActiveJobs counts jobs still held in the registry.
func (o *Orchestrator) ActiveJobs() int {
	return o.jobs.Len()
}
