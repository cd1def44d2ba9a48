package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"cadenza/internal/log"
)

// Pattern providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Candidate stores
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	// Database
	SQLiteDBPath string

	// AMQP (events are disabled when AMQPURL is empty)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
	AMQPQueue      string

	// Pattern collaborator
	PatternProvider string
	GeminiAPIKey    string
	GeminiModel     string
	LLMEndpoint     string
	LLMAPIKey       string
	LLMModel        string
	PatternsFile    string

	// Detection
	DetectionLookback time.Duration
	DetectionTimeout  time.Duration

	// Candidate store
	CandidateStore     string
	RedisURL           string
	CandidateTTL       time.Duration
	CandidateCacheSize int

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/recurring.db"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "recurring"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "recurring"),
		AMQPQueue:      getEnv("AMQP_QUEUE", "recurring_events"),

		PatternProvider: getEnv("PATTERN_PROVIDER", ProviderGemini),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMEndpoint:     getEnv("LLM_ENDPOINT", ""),
		LLMAPIKey:       getEnv("LLM_API_KEY", ""),
		LLMModel:        getEnv("LLM_MODEL", ""),
		PatternsFile:    getEnv("PATTERNS_FILE", ""),

		DetectionLookback: getEnvDuration("DETECTION_LOOKBACK", 365*24*time.Hour),
		DetectionTimeout:  getEnvDuration("DETECTION_TIMEOUT", 60*time.Second),

		CandidateStore:     getEnv("CANDIDATE_STORE", StoreMemory),
		RedisURL:           getEnv("REDIS_URL", ""),
		CandidateTTL:       getEnvDuration("CANDIDATE_TTL", time.Hour),
		CandidateCacheSize: getEnvInt("CANDIDATE_CACHE_SIZE", 256),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// AMQP is optional
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	providers := []string{ProviderGemini, ProviderOpenAI, ProviderStatic}
	switch c.PatternProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errors = append(errors, "GEMINI_API_KEY is required when using the gemini pattern provider")
		}
	case ProviderOpenAI:
		if c.LLMEndpoint == "" {
			errors = append(errors, "LLM_ENDPOINT is required when using the openai pattern provider")
		} else if u, err := url.Parse(c.LLMEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid LLM endpoint '%s': must be an http(s) URL", c.LLMEndpoint))
		}
		if c.LLMModel == "" {
			errors = append(errors, "LLM_MODEL is required when using the openai pattern provider")
		}
	case ProviderStatic:
		if c.PatternsFile != "" {
			if _, err := os.Stat(c.PatternsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("patterns file does not exist: %s", c.PatternsFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid pattern provider '%s': must be one of %v", c.PatternProvider, providers))
	}

	if c.DetectionLookback < 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid detection lookback %v: must be at least 24 hours", c.DetectionLookback))
	} else if c.DetectionLookback > 10*365*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid detection lookback %v: must be at most 10 years", c.DetectionLookback))
	}

	if c.DetectionTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid detection timeout %v: must be at least 1 second", c.DetectionTimeout))
	} else if c.DetectionTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid detection timeout %v: must be at most 10 minutes", c.DetectionTimeout))
	}

	stores := []string{StoreMemory, StoreRedis}
	if !slices.Contains(stores, c.CandidateStore) {
		errors = append(errors, fmt.Sprintf("invalid candidate store '%s': must be one of %v", c.CandidateStore, stores))
	}
	if c.CandidateStore == StoreRedis {
		if c.RedisURL == "" {
			errors = append(errors, "REDIS_URL is required when using the redis candidate store")
		} else if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': scheme must be 'redis' or 'rediss'", c.RedisURL))
		}
	}
	if c.CandidateTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid candidate TTL %v: must be at least 1 minute", c.CandidateTTL))
	}
	if c.CandidateCacheSize < 1 || c.CandidateCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid candidate cache size %d: must be between 1 and 100000", c.CandidateCacheSize))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
