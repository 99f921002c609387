package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Every collaborator that is left
// unconfigured falls back to an in-process implementation so the server runs
// with zero infrastructure in development.
type Server struct {
	Environment   string
	Addr          string
	PublicBaseURL string
	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration
	SeedDemoData  bool

	AllowedOrigins []string
	TrustedProxies []string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Storage  StorageConfig
	Issuance IssuanceConfig
	Webhooks WebhookConfig
	Activity ActivityConfig
	Quota    QuotaConfig
}

// DatabaseConfig configures the postgres pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the rate limiter backend. An empty URL selects the
// in-memory limiter.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the activity stream sink. Empty brokers disable it.
type KafkaConfig struct {
	Brokers       string
	ActivityTopic string
}

// StorageConfig configures the S3-compatible artifact store. An empty endpoint
// selects the in-memory store served under /objects/.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
	Timeout   time.Duration
}

// IssuanceConfig tunes the coordinator and its sweeper.
type IssuanceConfig struct {
	BatchConcurrency     int
	MaxBatchItems        int
	StuckGeneratingAfter time.Duration
	RenderTimeout        time.Duration
}

// WebhookConfig tunes the fan-out worker pool.
type WebhookConfig struct {
	Workers         int
	PerTenant       int
	QueueSize       int
	AttemptTimeout  time.Duration
	RetryPollEvery  time.Duration
	LogRetention    time.Duration
	SecretKeyBase64 string
}

// ActivityConfig configures the activity log.
type ActivityConfig struct {
	Retention  time.Duration
	BufferSize int
}

// QuotaConfig points at the plan catalog.
type QuotaConfig struct {
	PlansFile string
}

// VerifyRateLimit is the per-IP request budget for the public verification endpoint.
var VerifyRateLimit = 60

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Environment:   getEnv("ENVIRONMENT", "development"),
		Addr:          getEnv("SERVER_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getEnv("JWT_ISSUER", "certifier"),
		TokenTTL:      getDuration("TOKEN_TTL", 24*time.Hour),
		SeedDemoData:  getEnv("SEED_DEMO_DATA", "") == "true",

		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),

		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       os.Getenv("KAFKA_BROKERS"),
			ActivityTopic: getEnv("KAFKA_ACTIVITY_TOPIC", "certifier.activity"),
		},
		Storage: StorageConfig{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    getEnv("S3_BUCKET", "credentials"),
			Region:    os.Getenv("S3_REGION"),
			UseSSL:    getEnv("S3_USE_SSL", "true") == "true",
			PublicURL: strings.TrimRight(os.Getenv("S3_PUBLIC_URL"), "/"),
			Timeout:   getDuration("STORAGE_TIMEOUT", 60*time.Second),
		},
		Issuance: IssuanceConfig{
			BatchConcurrency:     getInt("BATCH_CONCURRENCY", 4),
			MaxBatchItems:        getInt("BATCH_MAX_ITEMS", 500),
			StuckGeneratingAfter: getDuration("STUCK_GENERATING_AFTER", 15*time.Minute),
			RenderTimeout:        getDuration("RENDER_TIMEOUT", 30*time.Second),
		},
		Webhooks: WebhookConfig{
			Workers:         getInt("WEBHOOK_WORKERS", 8),
			PerTenant:       getInt("WEBHOOK_PER_TENANT", 2),
			QueueSize:       getInt("WEBHOOK_QUEUE_SIZE", 1024),
			AttemptTimeout:  getDuration("WEBHOOK_ATTEMPT_TIMEOUT", 10*time.Second),
			RetryPollEvery:  getDuration("WEBHOOK_RETRY_POLL", 15*time.Second),
			LogRetention:    getDuration("DELIVERY_LOG_RETENTION", 30*24*time.Hour),
			SecretKeyBase64: os.Getenv("WEBHOOK_SECRET_KEY"),
		},
		Activity: ActivityConfig{
			Retention:  getDuration("ACTIVITY_RETENTION", 90*24*time.Hour),
			BufferSize: getInt("ACTIVITY_BUFFER_SIZE", 1000),
		},
		Quota: QuotaConfig{
			PlansFile: os.Getenv("PLANS_FILE"),
		},
	}
	VerifyRateLimit = getInt("VERIFY_RATE_LIMIT", VerifyRateLimit)

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would fail later in less obvious ways.
func (c Server) Validate() error {
	if c.Environment == "production" && c.JWTSigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	if !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
		return fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.PublicBaseURL)
	}
	if c.Storage.Endpoint != "" && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}
	if c.Issuance.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive")
	}
	if c.Webhooks.Workers < 1 || c.Webhooks.PerTenant < 1 {
		return fmt.Errorf("WEBHOOK_WORKERS and WEBHOOK_PER_TENANT must be positive")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c Server) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
