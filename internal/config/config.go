package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	EvaluationFormatStructured = "structured"
	EvaluationFormatText       = "text"

	defaultGeminiModel = "gemini-1.5-flash-latest"
)

// ModelConfig is the generation configuration for one call purpose.
type ModelConfig struct {
	Model            string
	Temperature      float32
	MaxTokens        int
	TopP             float32
	PresencePenalty  float32
	FrequencyPenalty float32
	Timeout          time.Duration
}

type Config struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string

	StorageDriver string
	StorageURL    string
	StorageKey    string

	HTTPPort  string
	LogLevel  string
	LogPretty bool

	TestMode         bool
	EvaluationFormat string
	RetryBaseDelay   time.Duration
	SessionIdleTTL   time.Duration // zero disables eviction

	Conversation ModelConfig
	Summary      ModelConfig
	Evaluation   ModelConfig

	// Set when no .env file was found; reported once logging is up.
	DotEnvMissing bool
}

// PersistenceEnabled reports whether a storage URL was configured.
func (c *Config) PersistenceEnabled() bool {
	return c.StorageURL != ""
}

// LoadConfig reads .env (if present) and the environment. A missing API key
// for the selected completion provider is an error.
func LoadConfig() (*Config, error) {
	dotEnvMissing := godotenv.Load() != nil // Load .env file if it exists

	cfg := &Config{
		Provider:      strings.ToLower(getEnv("COMPLETION_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),

		StorageDriver: getEnv("STORAGE_DRIVER", ""),
		StorageURL:    getEnv("STORAGE_URL", ""),
		StorageKey:    getEnv("STORAGE_KEY", ""),

		HTTPPort:  getEnv("HTTP_PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),

		TestMode:         getEnvAsBool("TEST_MODE", false),
		EvaluationFormat: strings.ToLower(getEnv("EVALUATION_FORMAT", EvaluationFormatStructured)),
		RetryBaseDelay:   time.Duration(getEnvAsInt("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		SessionIdleTTL:   time.Duration(getEnvAsInt("SESSION_IDLE_TTL_MINUTES", 60)) * time.Minute,

		DotEnvMissing: dotEnvMissing,
	}

	defaults := map[string]ModelConfig{
		"CONVERSATION": {Model: "gpt-4o-mini", Temperature: 0.6, MaxTokens: 700, TopP: 1.0, FrequencyPenalty: 0.2},
		"SUMMARY":      {Model: "gpt-4o-mini", Temperature: 0.25, MaxTokens: 1000, TopP: 1.0, FrequencyPenalty: 0.2},
		"EVALUATION":   {Model: "gpt-4o", Temperature: 0.4, MaxTokens: 1400, TopP: 1.0, FrequencyPenalty: 0.3},
	}
	if cfg.Provider == ProviderGemini {
		for k, v := range defaults {
			v.Model = defaultGeminiModel
			defaults[k] = v
		}
	}
	cfg.Conversation = loadModelConfig("CONVERSATION", defaults["CONVERSATION"])
	cfg.Summary = loadModelConfig("SUMMARY", defaults["SUMMARY"])
	cfg.Evaluation = loadModelConfig("EVALUATION", defaults["EVALUATION"])

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY environment variable is required")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unsupported COMPLETION_PROVIDER %q", c.Provider)
	}

	switch c.EvaluationFormat {
	case EvaluationFormatStructured, EvaluationFormatText:
	default:
		return fmt.Errorf("unsupported EVALUATION_FORMAT %q", c.EvaluationFormat)
	}
	return nil
}

func loadModelConfig(prefix string, def ModelConfig) ModelConfig {
	return ModelConfig{
		Model:            getEnv(prefix+"_MODEL", def.Model),
		Temperature:      getEnvAsFloat32(prefix+"_TEMPERATURE", def.Temperature),
		MaxTokens:        getEnvAsInt(prefix+"_MAX_TOKENS", def.MaxTokens),
		TopP:             getEnvAsFloat32(prefix+"_TOP_P", def.TopP),
		PresencePenalty:  getEnvAsFloat32(prefix+"_PRESENCE_PENALTY", def.PresencePenalty),
		FrequencyPenalty: getEnvAsFloat32(prefix+"_FREQUENCY_PENALTY", def.FrequencyPenalty),
		Timeout:          time.Duration(getEnvAsInt(prefix+"_TIMEOUT_SECONDS", 60)) * time.Second,
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
