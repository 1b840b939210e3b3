package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gvmoraes79/FabricaEbook/internal/api"
	"github.com/gvmoraes79/FabricaEbook/internal/config"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
	"github.com/gvmoraes79/FabricaEbook/internal/pipeline"
	"github.com/gvmoraes79/FabricaEbook/internal/render"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	profile, err := config.LoadProfile(cfg.LayoutProfile)
	if err != nil {
		log.Error("invalid layout profile", "error", err)
		os.Exit(1)
	}
	if cfg.EbookAPIKey == "" {
		log.Warn("EBOOK_API_KEY not set, API is unauthenticated")
	}
	if cfg.DefaultGenerationKey() == "" {
		log.Warn("no default generation key, requests must send "+api.GenerationKeyHeader, "backend", cfg.GenerationBackend)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	renderer := render.New(render.Options{
		Spec:         profile.Page,
		Policy:       profile.Policy,
		ProductLabel: cfg.ProductLabel,
		FontDir:      cfg.FontDir,
	}, log)
	renderer.Start(ctx)

	stats := generate.NewLLMStats(time.Hour)
	orch := pipeline.NewOrchestrator(cfg, pipeline.NewGeneratorFactory(cfg, stats), log)
	orch.Start(ctx)

	srv := api.NewServer(orch, renderer, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		cancel()
	}()

	log.Info("starting ebook service", "port", cfg.Port, "backend", cfg.GenerationBackend, "workers", cfg.WorkerCount)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
}
