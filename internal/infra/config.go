package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	StoreDriver string
	CatalogPath string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
	AdminToken       string

	Pipeline  PipelineConfig
	Scheduler SchedulerConfig
	Diversity DiversityConfig
	Cache     CacheConfig
	Providers ProviderConfig
	Storage   StorageConfig
	Approval  ApprovalConfig
}

// PipelineConfig tunes a single content-generation run.
type PipelineConfig struct {
	MaxAttempts     int
	MinQualityScore int
	RunTimeout      time.Duration
	AspectRatio     string
	Seed            int64
}

// SchedulerConfig controls the periodic trigger and the worker pool.
type SchedulerConfig struct {
	Cron         string
	Timezone     string
	StallTimeout time.Duration
	Concurrency  int
	QueueSize    int
	// RunOnStart makes the worker tick once before waiting for the first cron fire.
	RunOnStart bool
}

// DiversityConfig holds the env defaults for the variation knobs. The stored
// variation config row overrides them when present.
type DiversityConfig struct {
	GapScenario             int
	GapTable                int
	GapHandStyle            int
	GapComposition          int
	GapProduct              int
	GapPlate                int
	GapCup                  int
	SpecialElementFrequency int
}

type CacheConfig struct {
	Driver        string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ProviderConfig selects and configures the external AI collaborators.
type ProviderConfig struct {
	Reasoning         string
	Quality           string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiTextModel   string
	GeminiImageModel  string
	CostPerInputKTok  float64
	CostPerOutputKTok float64
	CostPerImage      float64
	CostPerEvaluation float64
}

type StorageConfig struct {
	Driver            string
	Dir               string
	BaseURL           string
	GCSBucket         string
	GCSPublicBaseURL  string
	GCSCredentialFile string
}

type ApprovalConfig struct {
	WebhookURL   string
	WebhookToken string
	Timeout      time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		CatalogPath:      os.Getenv("CATALOG_PATH"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 330)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", nil),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		Pipeline: PipelineConfig{
			MaxAttempts:     getEnvInt("PIPELINE_MAX_ATTEMPTS", 3),
			MinQualityScore: getEnvInt("PIPELINE_MIN_QUALITY_SCORE", 7),
			RunTimeout:      getEnvDuration("PIPELINE_RUN_TIMEOUT", 15*time.Minute),
			AspectRatio:     getEnv("PIPELINE_ASPECT_RATIO", "4:5"),
			Seed:            int64(getEnvInt("PIPELINE_SEED", 0)),
		},
		Scheduler: SchedulerConfig{
			Cron:         getEnv("SCHEDULER_CRON", "@every 15m"),
			Timezone:     getEnv("SCHEDULER_TIMEZONE", "Asia/Tokyo"),
			StallTimeout: getEnvDuration("SCHEDULER_STALL_TIMEOUT", 30*time.Minute),
			Concurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
			QueueSize:    getEnvInt("WORKER_QUEUE_SIZE", 64),
			RunOnStart:   getEnvBool("SCHEDULER_RUN_ON_START", true),
		},
		Diversity: DiversityConfig{
			GapScenario:             getEnvInt("GAP_SCENARIO", 3),
			GapTable:                getEnvInt("GAP_TABLE", 2),
			GapHandStyle:            getEnvInt("GAP_HAND_STYLE", 2),
			GapComposition:          getEnvInt("GAP_COMPOSITION", 3),
			GapProduct:              getEnvInt("GAP_PRODUCT", 5),
			GapPlate:                getEnvInt("GAP_PLATE", 2),
			GapCup:                  getEnvInt("GAP_CUP", 2),
			SpecialElementFrequency: getEnvInt("SPECIAL_ELEMENT_FREQUENCY", 5),
		},
		Cache: CacheConfig{
			Driver:        strings.ToLower(getEnv("CACHE_DRIVER", "memory")),
			TTL:           getEnvDuration("RULES_CACHE_TTL", 5*time.Minute),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Providers: ProviderConfig{
			Reasoning:         strings.ToLower(getEnv("REASONING_PROVIDER", "openai")),
			Quality:           strings.ToLower(getEnv("QUALITY_PROVIDER", "gemini")),
			OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
			GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			GeminiTextModel:   getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
			GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
			CostPerInputKTok:  getEnvFloat("COST_PER_INPUT_KTOK", 0.00015),
			CostPerOutputKTok: getEnvFloat("COST_PER_OUTPUT_KTOK", 0.0006),
			CostPerImage:      getEnvFloat("COST_PER_IMAGE", 0.039),
			CostPerEvaluation: getEnvFloat("COST_PER_EVALUATION", 0.002),
		},
		Storage: StorageConfig{
			Driver:            strings.ToLower(getEnv("STORAGE_DRIVER", "filesystem")),
			Dir:               getEnv("STORAGE_DIR", "./data/images"),
			BaseURL:           getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
			GCSBucket:         os.Getenv("GCS_BUCKET"),
			GCSPublicBaseURL:  os.Getenv("GCS_PUBLIC_BASE_URL"),
			GCSCredentialFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		Approval: ApprovalConfig{
			WebhookURL:   os.Getenv("APPROVAL_WEBHOOK_URL"),
			WebhookToken: os.Getenv("APPROVAL_WEBHOOK_TOKEN"),
			Timeout:      getEnvDuration("APPROVAL_TIMEOUT", 10*time.Second),
		},
	}

	if cfg.StoreDriver != "memory" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Pipeline.MaxAttempts <= 0 {
		return nil, fmt.Errorf("PIPELINE_MAX_ATTEMPTS must be positive")
	}
	if cfg.Storage.Driver == "gcs" && cfg.Storage.GCSBucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required when STORAGE_DRIVER=gcs")
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", cfg.Scheduler.Timezone, err)
	}

	return cfg, nil
}

// Location resolves the scheduler timezone. LoadConfig has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma separated value and drops empty items.
func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration accepts Go duration strings ("90s", "15m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}
