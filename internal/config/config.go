package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderFireworks = "fireworks"
	ProviderGemini    = "gemini"
)

type Config struct {
	LLMProvider        string
	LLMAPIURL          string
	LLMAPIKey          string
	LLMModel           string
	GeminiAPIKey       string
	GeminiModel        string
	DatabaseURL        string
	HTTPPort           string
	LogLevel           string
	JWTSecret          string
	SessionTTLHours    int
	RateLimitPerMinute int
	CORSOrigin         string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", ProviderFireworks)),
		LLMAPIURL:          getEnv("LLM_API_URL", "https://api.fireworks.ai/inference/v1/chat/completions"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMModel:           getEnv("LLM_MODEL", "accounts/sentientfoundation/models/dobby-unhinged-llama-3-3-70b-new"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		DatabaseURL:        getEnv("DATABASE_URL", "symptom_ai.db"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		SessionTTLHours:    getEnvAsInt("SESSION_TTL_HOURS", 24),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 10),
		CORSOrigin:         getEnv("CORS_ORIGIN", "*"),
	}

	if err := AppConfig.Validate(); err != nil {
		log.Fatal(err)
	}
}

// Validate reports the first required setting that is missing or invalid.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderFireworks:
		if c.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY environment variable is required")
		}
		if c.LLMAPIURL == "" {
			return fmt.Errorf("LLM_API_URL environment variable is required")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	return nil
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
