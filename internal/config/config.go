package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string // optional realtime store shared by several server instances

	AdminPassword string
	TokenSecret   string // empty means a random key per process

	CodingQuestionSecs int
	ReactQuestionSecs  int
	JavaQuestionSecs   int
	QualificationRatio float64

	BypassTeamName       string
	AccessEnabledDefault bool

	SheetWebhookURL    string
	TerminalTTLMinutes int
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set in the environment win.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[Config] Loaded .env file")
	}

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		RedisURL:    os.Getenv("REDIS_URL"),

		AdminPassword: getEnv("ADMIN_PASSWORD", "ADMIN"),
		TokenSecret:   os.Getenv("TOKEN_SECRET"),

		CodingQuestionSecs: getEnvInt("CODING_QUESTION_SECS", 180),
		ReactQuestionSecs:  getEnvInt("REACT_QUESTION_SECS", 600),
		JavaQuestionSecs:   getEnvInt("JAVA_QUESTION_SECS", 300),
		QualificationRatio: getEnvFloat("QUALIFICATION_RATIO", 0.6),

		BypassTeamName:       strings.ToUpper(getEnv("BYPASS_TEAM_NAME", "NEO")),
		AccessEnabledDefault: getEnvBool("ACCESS_ENABLED_DEFAULT", true),

		SheetWebhookURL:    os.Getenv("SHEET_WEBHOOK_URL"),
		TerminalTTLMinutes: getEnvInt("TERMINAL_TTL_MINUTES", 120),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
