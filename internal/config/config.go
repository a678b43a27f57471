package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	StorageBackend string // "memory", "firestore" or "redis"

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	RedisURL string

	UseRuleAnalyzer bool // true = keyword knowledge base instead of Gemini

	// ContextWindow bounds the on-demand view handed to the analyzer.
	// HistoryWindow bounds the always-on summary stored in the chat context.
	// Two independent knobs on purpose.
	ContextWindow int
	HistoryWindow int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}

// Load reads all env vars and builds the config. A .env file, when present,
// seeds the environment first (local development convenience).
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("CHATBOT_PORT", "8002"),

		StorageBackend: getEnv("CHATBOT_STORAGE_BACKEND", "memory"),

		GCPProjectID: getEnv("CHATBOT_GCP_PROJECT", ""),
		GCPLocation:  getEnv("CHATBOT_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("CHATBOT_MODEL_NAME", "gemini-2.5-flash"),

		RedisURL: getEnv("CHATBOT_REDIS_URL", "redis://localhost:6379/0"),

		UseRuleAnalyzer: getBoolEnv("CHATBOT_USE_RULE_ANALYZER", true),

		ContextWindow: getIntEnv("CHATBOT_CONTEXT_WINDOW", 10),
		HistoryWindow: getIntEnv("CHATBOT_HISTORY_WINDOW", 5),
	}

	if cfg.StorageBackend == "firestore" && cfg.GCPProjectID == "" {
		log.Fatal("CHATBOT_GCP_PROJECT must be set for the firestore backend")
	}
	if !cfg.UseRuleAnalyzer && cfg.GCPProjectID == "" {
		log.Fatal("CHATBOT_GCP_PROJECT must be set for the Gemini analyzer")
	}

	return cfg
}
