package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Session manager
	SessionSecretSeed string
	SignerMode        string // "hmac" or "legacy"

	// Edge firewall
	RateLimitWindow    time.Duration
	RateLimitMaxTokens int

	// HTTP surface rate limiting (per IP, distinct from the session bucket)
	HTTPRateLimitPerSec float64
	HTTPRateLimitBurst  int

	// Knowledge retrieval
	CorpusPath string
	CorpusURL  string

	// Encrypted memory
	CipherMode string // "aes" or "legacy"

	// Escalation
	EscalationProvider string // "worker", "openai", or "gemini"
	WorkerURL          string
	WorkerAuthToken    string
	OpenAIAPIKey       string
	OpenAIModel        string
	GeminiAPIKey       string
	GeminiModelID      string

	// Persistence
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SessionSecretSeed: getEnv("SESSION_SECRET_SEED", "ops-chattia-sealed-orchestrator"),
		SignerMode:        strings.ToLower(getEnv("SIGNER_MODE", "hmac")),

		RateLimitWindow:    getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		RateLimitMaxTokens: getEnvAsInt("RATE_LIMIT_MAX_TOKENS", 8),

		HTTPRateLimitPerSec: getEnvAsFloat("HTTP_RATE_LIMIT_PER_SEC", 5),
		HTTPRateLimitBurst:  getEnvAsInt("HTTP_RATE_LIMIT_BURST", 10),

		CorpusPath: getEnv("CORPUS_PATH", "ops_bm25_corpus.jsonl"),
		CorpusURL:  getEnv("CORPUS_URL", ""),

		CipherMode: strings.ToLower(getEnv("CIPHER_MODE", "aes")),

		EscalationProvider: strings.ToLower(strings.TrimSpace(getEnv("ESCALATION_PROVIDER", "worker"))),
		WorkerURL:          getEnv("WORKER_URL", ""),
		WorkerAuthToken:    getEnv("WORKER_AUTH_TOKEN", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
