package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"debugiq.app/backend/core/db"
)

// DispatchMode selects how workflow triggers reach the runner.
type DispatchMode string

const (
	// DispatchInProcess spawns the run on the in-process task registry.
	DispatchInProcess DispatchMode = "inprocess"
	// DispatchQueue enqueues the trigger onto the Redis stream for cmd/worker.
	DispatchQueue DispatchMode = "queue"
)

type Config struct {
	Env  string
	Port string

	OTel     OTelConfig
	DB       db.Config
	Redis    RedisConfig
	Workflow WorkflowConfig
	GitLab   GitLabConfig

	DiagnosisLLM LLMConfig
	PatchLLM     LLMConfig
	TriageLLM    LLMConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	// Environment mirrors DEBUGIQ_ENV for the deployment.environment
	// resource attribute.
	Environment string
}

type RedisConfig struct {
	URL       string
	Stream    string
	Group     string
	DLQStream string
	Consumer  string
}

type WorkflowConfig struct {
	Dispatch    DispatchMode
	StepTimeout time.Duration
	MaxAttempts int // queue redelivery attempts before DLQ
}

type GitLabConfig struct {
	Token   string
	BaseURL string
	// TargetBranch is the branch merge requests are opened against.
	TargetBranch string
}

type LLMConfig struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	BaseURL   string // Optional: for custom endpoints
	Model     string
	MaxTokens int
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the background worker
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("DEBUGIQ_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("DEBUGIQ_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "debugiq-"+string(serviceType)),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("DEBUGIQ_ENV", "development"),
		},
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			Stream:    getEnv("REDIS_STREAM", "debugiq_workflows"),
			Group:     getEnv("REDIS_CONSUMER_GROUP", "debugiq_group"),
			DLQStream: getEnv("REDIS_DLQ_STREAM", "debugiq_workflows_dlq"),
			Consumer:  getEnv("REDIS_CONSUMER_NAME", string(serviceType)),
		},
		Workflow: WorkflowConfig{
			Dispatch:    DispatchMode(getEnv("WORKFLOW_DISPATCH", string(DispatchInProcess))),
			StepTimeout: getEnvDuration("WORKFLOW_STEP_TIMEOUT", 120*time.Second),
			MaxAttempts: getEnvInt("WORKFLOW_MAX_ATTEMPTS", 3),
		},
		GitLab: GitLabConfig{
			Token:        getEnv("GITLAB_TOKEN", ""),
			BaseURL:      getEnv("GITLAB_BASE_URL", "https://gitlab.com"),
			TargetBranch: getEnv("GITLAB_TARGET_BRANCH", "main"),
		},
		DiagnosisLLM: LLMConfig{
			Provider:  getEnv("DIAGNOSIS_LLM_PROVIDER", "openai"),
			APIKey:    getEnv("DIAGNOSIS_LLM_API_KEY", ""),
			BaseURL:   getEnv("DIAGNOSIS_LLM_BASE_URL", ""),
			Model:     getEnv("DIAGNOSIS_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("DIAGNOSIS_LLM_MAX_TOKENS", 4096),
		},
		PatchLLM: LLMConfig{
			Provider:  getEnv("PATCH_LLM_PROVIDER", "openai"),
			APIKey:    getEnv("PATCH_LLM_API_KEY", ""),
			BaseURL:   getEnv("PATCH_LLM_BASE_URL", ""),
			Model:     getEnv("PATCH_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("PATCH_LLM_MAX_TOKENS", 16384),
		},
		TriageLLM: LLMConfig{
			Provider:  getEnv("TRIAGE_LLM_PROVIDER", "openai"),
			APIKey:    getEnv("TRIAGE_LLM_API_KEY", ""),
			BaseURL:   getEnv("TRIAGE_LLM_BASE_URL", ""),
			Model:     getEnv("TRIAGE_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("TRIAGE_LLM_MAX_TOKENS", 2048),
		},
	}

	if cfg.Workflow.Dispatch != DispatchInProcess && cfg.Workflow.Dispatch != DispatchQueue {
		return Config{}, fmt.Errorf("WORKFLOW_DISPATCH must be %q or %q", DispatchInProcess, DispatchQueue)
	}
	if cfg.Workflow.Dispatch == DispatchQueue && cfg.Redis.URL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required for queue dispatch")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func (c GitLabConfig) Enabled() bool {
	return c.Token != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
