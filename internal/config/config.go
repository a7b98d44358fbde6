package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	CORSOrigin    string

	// Uploaded session files. When S3Endpoint is set the MinIO backend is
	// used, otherwise UploadsDir on the local filesystem.
	UploadsDir  string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// Generator (OpenAI-compatible chat completions).
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Search
	MeiliURL       string
	MeiliMasterKey string

	// Generation result cache
	RedisURL string

	// Note revision history
	HistoryDir string

	// Template armed for the first sync ("" disables the deferred generation).
	StartupTemplate string
}

func Load() Config {
	return Config{
		Addr:          getenv("API_ADDR", ":8788"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		MigrationsDir: getenv("SCRIBE_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:    getenv("SCRIBE_CORS_ORIGIN", "*"),

		UploadsDir:  getenv("SCRIBE_UPLOADS_DIR", "./data/uploads"),
		S3Endpoint:  getenv("SCRIBE_S3_ENDPOINT", ""),
		S3AccessKey: getenv("SCRIBE_S3_ACCESS_KEY", ""),
		S3SecretKey: getenv("SCRIBE_S3_SECRET_KEY", ""),
		S3Bucket:    getenv("SCRIBE_S3_BUCKET", "scribe-uploads"),
		S3UseSSL:    getenvBool("SCRIBE_S3_USE_SSL", false),

		OpenAIAPIKey:  getenv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getenv("OPENAI_MODEL", "gpt-3.5-turbo"),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		RedisURL: getenv("REDIS_URL", ""),

		HistoryDir: getenv("SCRIBE_HISTORY_DIR", "./data/history"),

		StartupTemplate: getenv("SCRIBE_STARTUP_TEMPLATE", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
