package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	AdminKey string

	Gemini   GeminiConfig
	Limits   LimitConfig
	Cache    CacheConfig
	Breaker  BreakerConfig
	Pipeline PipelineConfig
	Reports  ReportConfig
	Archive  ArchiveConfig
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type LimitConfig struct {
	RPM     int
	RPD     int
	Policy  string // "wait" or "reject"
	MaxWait time.Duration
}

type CacheConfig struct {
	Entries int
	TTL     time.Duration
}

type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

type PipelineConfig struct {
	WebGrounding   bool
	HighConfidence float64
	MinConfidence  float64
}

type ReportConfig struct {
	// DSN, when set, switches report history from memory to Postgres.
	DSN string
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:     *port,
		Env:      env,
		AdminKey: strings.TrimSpace(os.Getenv("ADMIN_KEY")),
		Gemini: GeminiConfig{
			APIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:   firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.0-flash"),
			Timeout: envDuration("GEMINI_TIMEOUT", 45*time.Second),
		},
		Limits: LimitConfig{
			RPM:     envInt("RATE_LIMIT_RPM", 5),
			RPD:     envInt("RATE_LIMIT_RPD", 1500),
			Policy:  firstNonEmpty(strings.ToLower(strings.TrimSpace(os.Getenv("RATE_LIMIT_POLICY"))), "wait"),
			MaxWait: envDuration("RATE_LIMIT_MAX_WAIT", 2*time.Second),
		},
		Cache: CacheConfig{
			Entries: envInt("RESPONSE_CACHE_ENTRIES", 256),
			TTL:     envDuration("RESPONSE_CACHE_TTL", 5*time.Minute),
		},
		Breaker: BreakerConfig{
			Threshold: envInt("BREAKER_THRESHOLD", 5),
			Cooldown:  envDuration("BREAKER_COOLDOWN", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			WebGrounding:   envBool("ENABLE_WEB_GROUNDING", true),
			HighConfidence: envFloat("CONFIDENCE_HIGH", 0.6),
			MinConfidence:  envFloat("CONFIDENCE_MIN", 0.3),
		},
		Reports: ReportConfig{
			DSN: strings.TrimSpace(os.Getenv("REPORT_PG_DSN")),
		},
		Archive: loadArchiveConfig(env),
	}, nil
}

func loadArchiveConfig(env string) ArchiveConfig {
	endpoint := resolveArchiveEndpoint(env)
	return ArchiveConfig{
		Enabled:   envBool("IMAGE_ARCHIVE_ENABLED", false),
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_BUCKET")), "fixit-images"),
		UseSSL:    resolveArchiveUseSSL(env),
	}
}

func resolveArchiveEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_MINIO_ENDPOINT")), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("ARCHIVE_S3_ENDPOINT"))
}

func resolveArchiveUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARCHIVE_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
