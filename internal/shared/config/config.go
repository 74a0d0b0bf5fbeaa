package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	LogFormat       string
	LogLevel        string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	KVBackend       string
	DatabaseURL     string
	RedisURL        string
	KVRemoteURL     string
	KVRemoteToken   string
	KVWriteDeadline time.Duration

	LLMProvider  string
	LLMModel     string
	OpenAIAPIKey string
	GeminiAPIKey string
	LLMBreaker   BreakerConfig

	Renderer string
	QuotaURL string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UIRedirectURL      string

	SubmitRatePerMin int
	ReadRatePerMin   int
}

// BreakerConfig tunes the circuit breaker placed in front of the inference provider.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	MinRequests      uint32
	FailureThreshold float64
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultKVWriteDeadline bounds how long a record write may hold up a submission.
const DefaultKVWriteDeadline = 1500 * time.Millisecond

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	kvBackend := normalizeKVBackend(getEnv("KV_BACKEND", "memory"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && kvBackend == "memory" {
		log.Printf("KV_BACKEND=memory is not durable; set postgres, redis or remote in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		KVBackend:       kvBackend,
		DatabaseURL:     dbURL,
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		KVRemoteURL:     getEnv("KV_REMOTE_URL", ""),
		KVRemoteToken:   getEnv("KV_REMOTE_TOKEN", ""),
		KVWriteDeadline: getDuration("KV_WRITE_DEADLINE", DefaultKVWriteDeadline),

		LLMProvider:  normalizeProvider(getEnv("LLM_PROVIDER", "none")),
		LLMModel:     getEnv("LLM_MODEL", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		LLMBreaker: BreakerConfig{
			Enabled:          getBool("LLM_BREAKER_ENABLED", true),
			MaxRequests:      uint32(getInt("LLM_BREAKER_MAX_REQUESTS", 1)),
			MinRequests:      uint32(getInt("LLM_BREAKER_MIN_REQUESTS", 3)),
			FailureThreshold: getFloat("LLM_BREAKER_FAILURE_THRESHOLD", 0.6),
			Interval:         getDuration("LLM_BREAKER_INTERVAL", time.Minute),
			Timeout:          getDuration("LLM_BREAKER_TIMEOUT", 30*time.Second),
		},

		Renderer: normalizeRenderer(getEnv("RENDERER", "mupdf")),
		QuotaURL: getEnv("QUOTA_URL", "https://platform.openai.com/usage"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		UIRedirectURL:      getEnv("UI_REDIRECT_URL", ""),

		SubmitRatePerMin: getInt("RATE_LIMIT_SUBMIT_PER_MIN", 6),
		ReadRatePerMin:   getInt("RATE_LIMIT_READ_PER_MIN", 120),
	}
}

func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// Existing environment wins over file values.
		if err := godotenv.Load(path); err != nil {
			log.Printf("config: failed to load %s: %v", path, err)
		}
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		log.Printf("config: %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s invalid float %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config: %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeKVBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg", "postgresql":
		return "postgres"
	case "redis":
		return "redis"
	case "remote", "http":
		return "remote"
	default:
		return "memory"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	case "gemini", "google":
		return "gemini"
	default:
		return "none"
	}
}

func normalizeRenderer(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "off", "disabled":
		return "none"
	default:
		return "mupdf"
	}
}
