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
	Port                 string
	CORSAllowOrigin      []string
	ObjectStoreType      string
	LocalStoreDir        string
	PublicBaseURL        string
	AWSRegion            string
	S3Bucket             string
	S3Prefix             string
	SSEKMSKeyID          string
	DatabaseURL          string
	Env                  string
	LogLevel             string
	ApplicationsQueueURL string
	UploadRateLimit      float64
	UploadRateBurst      int
	WorkerConcurrency    int
	WorkerVisibility     time.Duration
	ShutdownTimeout      time.Duration
}

// ClientConfig configures the applicant-side pipeline.
type ClientConfig struct {
	APIURL              string
	APIToken            string
	GuestID             string
	HTTPTimeout         time.Duration
	UploadTimeout       time.Duration
	UploadMaxConcurrent int
	SubmitParallelism   int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:                 getEnv("PORT", "8080"),
		CORSAllowOrigin:      splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		ObjectStoreType:      normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:        getEnv("LOCAL_STORE_DIR", "./data"),
		PublicBaseURL:        strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		AWSRegion:            getEnv("AWS_REGION", ""),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		S3Prefix:             getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:          getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:          dbURL,
		Env:                  env,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ApplicationsQueueURL: getEnv("APPLICATIONS_SQS_QUEUE_URL", ""),
		UploadRateLimit:      getEnvFloat("UPLOAD_RATE_LIMIT", 1),
		UploadRateBurst:      getEnvInt("UPLOAD_RATE_BURST", 10),
		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerVisibility:     getEnvDuration("WORKER_VISIBILITY_TIMEOUT", 5*time.Minute),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// LoadClient reads the applicant pipeline configuration.
func LoadClient() ClientConfig {
	loadEnvFiles(".env", "cmd/.env")

	return ClientConfig{
		APIURL:              strings.TrimRight(getEnv("API_URL", "http://localhost:8080"), "/"),
		APIToken:            getEnv("API_TOKEN", ""),
		GuestID:             getEnv("GUEST_ID", ""),
		HTTPTimeout:         getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		UploadTimeout:       getEnvDuration("UPLOAD_TIMEOUT", 2*time.Minute),
		UploadMaxConcurrent: getEnvInt("UPLOAD_MAX_CONCURRENT", 4),
		SubmitParallelism:   getEnvInt("SUBMIT_PARALLELISM", 2),
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
		log.Printf("config %s invalid int: %v", key, err)
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
		log.Printf("config %s invalid float: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration: %v", key, err)
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
