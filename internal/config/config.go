package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings, loaded from the environment.
type Config struct {
	// LLM settings
	GeminiAPIKey string
	GeminiModel  string

	// Run settings
	Watchlist           []string
	ResearchConcurrency int
	TierTimeoutSec      int
	CronSchedule        string

	// Persistence
	OrderStorePath string

	// Notifications (optional; disabled when the token is empty)
	TelegramBotToken string
	TelegramChatID   string

	// Logging
	LogLevel string
}

// Load initializes the configuration. It tries to read a .env file, validates
// the required environment variables, and applies defaults for the rest.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	}

	required := []string{
		"APCA_API_KEY_ID",
		"APCA_API_SECRET_KEY",
		"APCA_API_BASE_URL",
		"GEMINI_API_KEY",
	}
	var missing []string
	for _, key := range required {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		log.Fatalf("CRITICAL: Missing required environment variables: %v", missing)
	}

	return &Config{
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", ""),
		Watchlist:           splitList(os.Getenv("WATCHLIST_TICKERS")),
		ResearchConcurrency: getEnvAsInt("RESEARCH_CONCURRENCY", 4),
		TierTimeoutSec:      getEnvAsInt("TIER_TIMEOUT_SEC", 120),
		CronSchedule:        getEnv("RUN_SCHEDULE", "30 15 * * MON-FRI"),
		OrderStorePath:      getEnv("ORDER_STORE_PATH", "orders.db"),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:      os.Getenv("TELEGRAM_CHAT_ID"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
}

// splitList parses a comma-separated ticker list, trimming whitespace and
// dropping empties.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, strings.ToUpper(t))
		}
	}
	return out
}
