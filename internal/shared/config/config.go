package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	DatabaseURL string
	RedisURL    string
	QueueName   string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	CatalogDir string

	LLMProvider   string
	LLMModel      string
	LLMMaxTokens  int
	LLMRetryCount int
	LLMBackoff    time.Duration
	LLMTimeout    time.Duration

	OCREngine     string
	TesseractPath string
	PdftoppmPath  string

	APIKey            string
	MaxFileSizeBytes  int64
	AllowedExtensions []string
	UploadRatePerMin  float64

	ResultCacheTTL  time.Duration
	JobExpiryDays   int
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		DatabaseURL: dbURL,
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueName:   getEnv("QUEUE_NAME", "lumen_jobs"),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		CatalogDir: getEnv("CATALOG_DIR", ""),

		LLMProvider:   getEnv("LLM_PROVIDER", "openai"),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4.1-mini"),
		LLMMaxTokens:  getEnvInt("LLM_MAX_TOKENS", 1200),
		LLMRetryCount: getEnvInt("LLM_RETRY_COUNT", 3),
		LLMBackoff:    time.Duration(getEnvInt("LLM_RETRY_BACKOFF_SEC", 2)) * time.Second,
		LLMTimeout:    time.Duration(getEnvInt("LLM_TIMEOUT_SEC", 60)) * time.Second,

		OCREngine:     getEnv("OCR_ENGINE", "tesseract"),
		TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
		PdftoppmPath:  getEnv("PDFTOPPM_PATH", "pdftoppm"),

		APIKey:            getEnv("API_KEY", ""),
		MaxFileSizeBytes:  int64(getEnvInt("MAX_FILE_SIZE_MB", 10)) * 1024 * 1024,
		AllowedExtensions: splitAndTrim(getEnv("ALLOWED_EXTENSIONS", ".pdf,.jpg,.jpeg,.png")),
		UploadRatePerMin:  getEnvFloat("UPLOAD_RATE_PER_MINUTE", 10),

		ResultCacheTTL:  time.Duration(getEnvInt("RESULT_CACHE_TTL_SEC", 3600)) * time.Second,
		JobExpiryDays:   getEnvInt("JOB_EXPIRY_DAYS", 7),
		CleanupInterval: time.Duration(getEnvInt("CLEANUP_INTERVAL_HOURS", 24)) * time.Hour,
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
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
