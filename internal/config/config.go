package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Generation backends.
const (
	BackendGemini = "gemini"
	BackendClaude = "claude"
)

type Config struct {
	Port string

	// Auth for this service's own API. Empty disables auth.
	EbookAPIKey string

	// Generation backend and its default credentials. A request may
	// override the key with its own.
	GenerationBackend string
	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiTextModel   string
	GeminiImageModel  string
	AnthropicAPIKey   string
	AnthropicModel    string
	GenerationTimeout time.Duration

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Retry policy for generation calls
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Enhance-mode chunking
	ChunkSize    int
	ChunkOverlap int

	// Job state
	JobTTL time.Duration

	// PDF input
	PDFFallbackPdftotext bool

	// PDF output
	FontDir       string
	LayoutProfile string
	ProductLabel  string

	// Submissions per client IP per minute; 0 disables the limit.
	RateLimitPerMinute int
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		EbookAPIKey: os.Getenv("EBOOK_API_KEY"),

		GenerationBackend: strings.ToLower(envOr("GENERATION_BACKEND", BackendGemini)),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:     os.Getenv("GEMINI_BASE_URL"),
		GeminiTextModel:   envOr("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel:  envOr("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		GenerationTimeout: envDuration("GENERATION_TIMEOUT", 180*time.Second),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),

		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   envDuration("RETRY_BASE_DELAY", 1*time.Second),
		RetryMaxDelay:    envDuration("RETRY_MAX_DELAY", 30*time.Second),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 20<<20),

		ChunkSize:    envInt("CHUNK_SIZE", 6000),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 200),

		JobTTL: envDuration("JOB_TTL", 2*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		FontDir:       os.Getenv("FONT_DIR"),
		LayoutProfile: os.Getenv("LAYOUT_PROFILE"),
		ProductLabel:  envOr("PRODUCT_LABEL", "Fábrica de E-books"),

		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 10),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 1 * time.Second
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = max(30*time.Second, cfg.RetryBaseDelay)
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 180 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 6000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 2 * time.Hour
	}
	if cfg.RateLimitPerMinute < 0 {
		cfg.RateLimitPerMinute = 0
	}

	return cfg
}

// Validate checks the backend choice. A missing generation key is not an
// error: callers can supply one per request.
func (c Config) Validate() error {
	switch c.GenerationBackend {
	case BackendGemini, BackendClaude:
	default:
		return fmt.Errorf("GENERATION_BACKEND must be %q or %q, got %q", BackendGemini, BackendClaude, c.GenerationBackend)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// DefaultGenerationKey is the configured key for the selected backend.
func (c Config) DefaultGenerationKey() string {
	if c.GenerationBackend == BackendClaude {
		return c.AnthropicAPIKey
	}
	return c.GeminiAPIKey
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
