package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider and driver names.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	ProviderOpenAI    = "openai"
	ProviderHash      = "hash"
	ProviderAnthropic = "anthropic"
)

const (
	defaultGroqBaseURL      = "https://api.groq.com/openai/v1"
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultGroqModel        = "llama-3.1-8b-instant"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
)

type Config struct {
	Port     string
	LogLevel string

	// Auth: bearer token required on /api routes when set.
	APIKey string

	// Chunk store
	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	DBPoolSize  int
	VectorIndex string

	// Embeddings
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBaseURL   string
	EmbeddingAPIKey    string
	EmbeddingBatchSize int
	EmbeddingRPS       float64

	// Generation
	GenerationProvider    string
	GenerationModel       string
	GenerationBaseURL     string
	GenerationAPIKey      string
	GenerationTemperature float64
	GenerationMaxTokens   int

	// Chunking
	ParentChunkSize    int
	ParentChunkOverlap int
	ChildChunkSize     int
	ChildChunkOverlap  int

	// Retrieval
	TopK int

	// Worker pool
	WorkerCount          int
	MaxQueueSize         int
	MaxConcurrentParents int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

// fileConfig is the optional YAML file named by MANUALBOT_CONFIG. Its values
// replace the built-in defaults; environment variables still win.
type fileConfig struct {
	Chunking struct {
		ParentSize    int `yaml:"parent_size"`
		ParentOverlap int `yaml:"parent_overlap"`
		ChildSize     int `yaml:"child_size"`
		ChildOverlap  int `yaml:"child_overlap"`
	} `yaml:"chunking"`
	Retrieval struct {
		TopK int `yaml:"top_k"`
	} `yaml:"retrieval"`
	Embedding struct {
		Provider  string  `yaml:"provider"`
		Model     string  `yaml:"model"`
		Dimension int     `yaml:"dimension"`
		BaseURL   string  `yaml:"base_url"`
		BatchSize int     `yaml:"batch_size"`
		RPS       float64 `yaml:"requests_per_second"`
	} `yaml:"embedding"`
	Generation struct {
		Provider    string   `yaml:"provider"`
		Model       string   `yaml:"model"`
		BaseURL     string   `yaml:"base_url"`
		Temperature *float64 `yaml:"temperature"`
		MaxTokens   int      `yaml:"max_tokens"`
	} `yaml:"generation"`
	Store struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PoolSize    int    `yaml:"pool_size"`
		VectorIndex string `yaml:"vector_index"`
	} `yaml:"store"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:     "8000",
		LogLevel: "info",

		StoreDriver: StoreDriverPostgres,
		SQLitePath:  "data/manualbot.db",
		DBPoolSize:  10,
		VectorIndex: "hnsw",

		EmbeddingProvider:  ProviderOpenAI,
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDimension: 768,
		EmbeddingBatchSize: 100,
		EmbeddingRPS:       5,

		GenerationProvider:    ProviderOpenAI,
		GenerationTemperature: 0,
		GenerationMaxTokens:   1024,

		ParentChunkSize:    2000,
		ParentChunkOverlap: 200,
		ChildChunkSize:     300,
		ChildChunkOverlap:  50,

		TopK: 5,

		WorkerCount:          4,
		MaxQueueSize:         100,
		MaxConcurrentParents: 4,

		MaxUploadBytes: 52428800, // 50MB

		JobTTL: 1 * time.Hour,

		PDFFallbackPdftotext: true,
	}
}

// Load reads .env (if present), then the YAML file named by MANUALBOT_CONFIG
// (if set), then environment variables.
func Load() (Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	d := Defaults()
	if path := os.Getenv("MANUALBOT_CONFIG"); path != "" {
		if err := applyFile(&d, path); err != nil {
			return Config{}, err
		}
	}
	return fromEnv(d), nil
}

func applyFile(d *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setInt(&d.ParentChunkSize, f.Chunking.ParentSize)
	setInt(&d.ParentChunkOverlap, f.Chunking.ParentOverlap)
	setInt(&d.ChildChunkSize, f.Chunking.ChildSize)
	setInt(&d.ChildChunkOverlap, f.Chunking.ChildOverlap)
	setInt(&d.TopK, f.Retrieval.TopK)

	setString(&d.EmbeddingProvider, f.Embedding.Provider)
	setString(&d.EmbeddingModel, f.Embedding.Model)
	setInt(&d.EmbeddingDimension, f.Embedding.Dimension)
	setString(&d.EmbeddingBaseURL, f.Embedding.BaseURL)
	setInt(&d.EmbeddingBatchSize, f.Embedding.BatchSize)
	if f.Embedding.RPS != 0 {
		d.EmbeddingRPS = f.Embedding.RPS
	}

	setString(&d.GenerationProvider, f.Generation.Provider)
	setString(&d.GenerationModel, f.Generation.Model)
	setString(&d.GenerationBaseURL, f.Generation.BaseURL)
	if f.Generation.Temperature != nil {
		d.GenerationTemperature = *f.Generation.Temperature
	}
	setInt(&d.GenerationMaxTokens, f.Generation.MaxTokens)

	setString(&d.StoreDriver, f.Store.Driver)
	setString(&d.SQLitePath, f.Store.SQLitePath)
	setInt(&d.DBPoolSize, f.Store.PoolSize)
	setString(&d.VectorIndex, f.Store.VectorIndex)
	return nil
}

func fromEnv(d Config) Config {
	cfg := Config{
		Port:     envOr("PORT", d.Port),
		LogLevel: envOr("LOG_LEVEL", d.LogLevel),

		APIKey: os.Getenv("MANUALBOT_API_KEY"),

		StoreDriver: strings.ToLower(envOr("STORE_DRIVER", d.StoreDriver)),
		DatabaseURL: envOr("DATABASE_URL", os.Getenv("NEON_DB_URL")),
		SQLitePath:  envOr("SQLITE_PATH", d.SQLitePath),
		DBPoolSize:  envInt("DB_POOL_SIZE", d.DBPoolSize),
		VectorIndex: strings.ToLower(envOr("VECTOR_INDEX", d.VectorIndex)),

		EmbeddingProvider:  strings.ToLower(envOr("EMBEDDING_PROVIDER", d.EmbeddingProvider)),
		EmbeddingModel:     envOr("EMBEDDING_MODEL", d.EmbeddingModel),
		EmbeddingDimension: envInt("EMBEDDING_DIMENSION", d.EmbeddingDimension),
		EmbeddingBaseURL:   envOr("EMBEDDING_BASE_URL", d.EmbeddingBaseURL),
		EmbeddingAPIKey:    envOr("EMBEDDING_API_KEY", os.Getenv("OPENAI_API_KEY")),
		EmbeddingBatchSize: envInt("EMBEDDING_BATCH_SIZE", d.EmbeddingBatchSize),
		EmbeddingRPS:       envFloat("EMBEDDING_RPS", d.EmbeddingRPS),

		GenerationProvider:    strings.ToLower(envOr("GENERATION_PROVIDER", d.GenerationProvider)),
		GenerationModel:       envOr("GENERATION_MODEL", d.GenerationModel),
		GenerationBaseURL:     envOr("GENERATION_BASE_URL", d.GenerationBaseURL),
		GenerationTemperature: envFloat("GENERATION_TEMPERATURE", d.GenerationTemperature),
		GenerationMaxTokens:   envInt("GENERATION_MAX_TOKENS", d.GenerationMaxTokens),

		ParentChunkSize:    envInt("PARENT_CHUNK_SIZE", d.ParentChunkSize),
		ParentChunkOverlap: envInt("PARENT_CHUNK_OVERLAP", d.ParentChunkOverlap),
		ChildChunkSize:     envInt("CHILD_CHUNK_SIZE", d.ChildChunkSize),
		ChildChunkOverlap:  envInt("CHILD_CHUNK_OVERLAP", d.ChildChunkOverlap),

		TopK: envInt("TOP_K_RETRIEVAL", d.TopK),

		WorkerCount:          envInt("WORKER_COUNT", d.WorkerCount),
		MaxQueueSize:         envInt("MAX_QUEUE_SIZE", d.MaxQueueSize),
		MaxConcurrentParents: envInt("MAX_CONCURRENT_PARENTS", d.MaxConcurrentParents),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", d.MaxUploadBytes),

		JobTTL: envDuration("JOB_TTL", d.JobTTL),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", d.PDFFallbackPdftotext),
	}

	// Provider-specific defaults.
	switch cfg.GenerationProvider {
	case ProviderAnthropic:
		cfg.GenerationAPIKey = envOr("GENERATION_API_KEY", os.Getenv("ANTHROPIC_API_KEY"))
		fillString(&cfg.GenerationModel, defaultAnthropicModel)
		fillString(&cfg.GenerationBaseURL, defaultAnthropicBaseURL)
	default:
		cfg.GenerationAPIKey = envOr("GENERATION_API_KEY", os.Getenv("GROQ_API_KEY"))
		fillString(&cfg.GenerationModel, envOr("GROQ_MODEL", defaultGroqModel))
		fillString(&cfg.GenerationBaseURL, defaultGroqBaseURL)
	}
	if cfg.EmbeddingProvider == ProviderOpenAI {
		fillString(&cfg.EmbeddingBaseURL, defaultOpenAIBaseURL)
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = d.WorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = d.MaxQueueSize
	}
	if cfg.MaxConcurrentParents <= 0 {
		cfg.MaxConcurrentParents = d.MaxConcurrentParents
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = d.MaxUploadBytes
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = d.JobTTL
	}
	if cfg.EmbeddingBatchSize <= 0 {
		cfg.EmbeddingBatchSize = d.EmbeddingBatchSize
	}

	return cfg
}

// Validate checks ranges and that every selected provider has what it needs.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.ParentChunkSize >= 100 && c.ParentChunkSize <= 20000, "PARENT_CHUNK_SIZE must be 100-20000, got %d", c.ParentChunkSize)
	check(c.ChildChunkSize >= 50 && c.ChildChunkSize <= 500, "CHILD_CHUNK_SIZE must be 50-500, got %d", c.ChildChunkSize)
	check(c.ParentChunkOverlap >= 0 && c.ParentChunkOverlap < c.ParentChunkSize,
		"PARENT_CHUNK_OVERLAP must be >= 0 and < PARENT_CHUNK_SIZE, got %d", c.ParentChunkOverlap)
	check(c.ChildChunkOverlap >= 0 && c.ChildChunkOverlap < c.ChildChunkSize,
		"CHILD_CHUNK_OVERLAP must be >= 0 and < CHILD_CHUNK_SIZE, got %d", c.ChildChunkOverlap)
	check(c.ChildChunkSize < c.ParentChunkSize, "CHILD_CHUNK_SIZE (%d) must be smaller than PARENT_CHUNK_SIZE (%d)",
		c.ChildChunkSize, c.ParentChunkSize)
	check(c.TopK >= 1 && c.TopK <= 20, "TOP_K_RETRIEVAL must be 1-20, got %d", c.TopK)
	check(c.DBPoolSize >= 1, "DB_POOL_SIZE must be >= 1, got %d", c.DBPoolSize)
	check(c.GenerationTemperature >= 0 && c.GenerationTemperature <= 2,
		"GENERATION_TEMPERATURE must be 0-2, got %g", c.GenerationTemperature)
	check(c.GenerationMaxTokens > 0, "GENERATION_MAX_TOKENS must be positive, got %d", c.GenerationMaxTokens)
	check(c.EmbeddingRPS >= 0, "EMBEDDING_RPS must be >= 0, got %g", c.EmbeddingRPS)

	switch c.StoreDriver {
	case StoreDriverPostgres:
		check(c.DatabaseURL != "", "DATABASE_URL is required for the postgres store")
		check(c.VectorIndex == "hnsw" || c.VectorIndex == "ivfflat", "VECTOR_INDEX must be hnsw or ivfflat, got %q", c.VectorIndex)
	case StoreDriverSQLite:
		check(c.SQLitePath != "", "SQLITE_PATH is required for the sqlite store")
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		check(c.EmbeddingDimension >= 128 && c.EmbeddingDimension <= 4096,
			"EMBEDDING_DIMENSION must be 128-4096 for remote embeddings, got %d", c.EmbeddingDimension)
		check(c.EmbeddingAPIKey != "", "EMBEDDING_API_KEY (or OPENAI_API_KEY) is required for openai embeddings")
		check(c.EmbeddingModel != "", "EMBEDDING_MODEL is required")
	case ProviderHash:
		check(c.EmbeddingDimension >= 8 && c.EmbeddingDimension <= 4096,
			"EMBEDDING_DIMENSION must be 8-4096, got %d", c.EmbeddingDimension)
	default:
		problems = append(problems, fmt.Sprintf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}

	switch c.GenerationProvider {
	case ProviderOpenAI:
		check(c.GenerationAPIKey != "", "GENERATION_API_KEY (or GROQ_API_KEY) is required")
		check(c.GenerationBaseURL != "", "GENERATION_BASE_URL is required")
	case ProviderAnthropic:
		check(c.GenerationAPIKey != "", "GENERATION_API_KEY (or ANTHROPIC_API_KEY) is required")
	default:
		problems = append(problems, fmt.Sprintf("unknown GENERATION_PROVIDER %q", c.GenerationProvider))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setString overwrites dst when v is set.
func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// fillString sets dst to v when dst is empty.
func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
