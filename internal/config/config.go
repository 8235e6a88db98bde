package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	WebhookURL string

	TelegramBotToken string
	AdminUserID      int64

	GeminiAPIKey string
	GeminiModel  string

	CalendarID      string
	Timezone        string
	CredentialsPath string
	TokenPath       string

	// Slot resolution policy.
	ScanDays    int    // bounded forward scan for inferred due dates
	DefaultTime string // HH:MM used when no lesson slot matches
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("env %s: expected integer, got %q", k, v)
	}
	return n
}

func Load() *Config {
	// Local runs read .env; on the platform secrets are already in env.
	_ = godotenv.Load()

	var adminID int64
	if v := strings.TrimSpace(os.Getenv("ADMIN_USER_ID")); v != "" {
		adminID, _ = strconv.ParseInt(v, 10, 64)
	}

	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		Port:       getEnv("PORT", "8000"),
		WebhookURL: os.Getenv("WEBHOOK_URL"),

		TelegramBotToken: mustEnv("BOT_TOKEN"),
		AdminUserID:      adminID,

		GeminiAPIKey: mustEnv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		CalendarID:      getEnv("CALENDAR_ID", "primary"),
		Timezone:        getEnv("TIMEZONE", "Europe/Moscow"),
		CredentialsPath: getEnv("GOOGLE_CREDENTIALS_PATH", dataDir+"/credentials.json"),
		TokenPath:       getEnv("GOOGLE_TOKEN_PATH", dataDir+"/token.json"),

		ScanDays:    getEnvInt("SCHEDULE_SCAN_DAYS", 14),
		DefaultTime: getEnv("SCHEDULE_DEFAULT_TIME", "09:00"),
	}
}
