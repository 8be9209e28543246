package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// ClientsPath points at the client/region registry file.
	ClientsPath string
	// AdminTokenHash is an Argon2id PHC hash of the admin bearer token.
	AdminTokenHash string
	// SnowflakeNode must differ between processes sharing a database.
	SnowflakeNode int64

	RateLimit   RateLimitConfig
	Workbooks   WorkbookStoreConfig
	Inbox       InboxConfig
	Scheduler   SchedulerConfig
	MetricsPush MetricsPushConfig
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IngestClientRate  float64
	IngestClientBurst int
	// IngestLockTTLSeconds bounds how long one selector may hold the ingest lock.
	IngestLockTTLSeconds int
}

type WorkbookStoreConfig struct {
	Driver string // fs | minio
	Dir    string

	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type InboxConfig struct {
	Dir string
}

type SchedulerConfig struct {
	Enabled       bool
	RunInterval   time.Duration
	SubjectHint   string
	LookbackHours int
	EnabledJobs   []string

	RetentionEnabled bool
	RetentionCron    string
	RetentionMonths  int
	Timezone         string
}

// TelemetryConfig carries the logging and OTel knobs read by internal/observability.
type TelemetryConfig struct {
	DeploymentEnv  string
	ServiceVersion string
	LogLevel       string
	LogFormat      string

	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64

	// SlowQuery marks timeseries SQL slower than this in the db.query log.
	SlowQuery time.Duration
}

// MetricsPushConfig configures where one-shot commands push their metrics.
type MetricsPushConfig struct {
	Exporter  string // prometheus_remote_write | prometheus_pushgateway
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getenv("APP_SERVICE", "sheetseries"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    getenv("ENVIRONMENT", "development"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		ClientsPath:    strings.TrimSpace(getenv("CLIENTS_CONFIG", "clients.yml")),
		AdminTokenHash: strings.TrimSpace(getenv("ADMIN_TOKEN_HASH", "")),
		SnowflakeNode:  int64(getenvInt("SNOWFLAKE_NODE", 1)),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "sheetseries"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "sheetseries.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:            strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379")),
			RedisPassword:        getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:              getenvInt("RATE_LIMIT_REDIS_DB", 0),
			IngestClientRate:     getenvFloat("RATE_LIMIT_INGEST_CLIENT_RATE", 1),
			IngestClientBurst:    getenvInt("RATE_LIMIT_INGEST_CLIENT_BURST", 5),
			IngestLockTTLSeconds: getenvInt("RATE_LIMIT_INGEST_LOCK_TTL_SECONDS", 120),
		},
		Workbooks: WorkbookStoreConfig{
			Driver:    strings.ToLower(getenv("WORKBOOK_STORE", "fs")),
			Dir:       getenv("WORKBOOK_DIR", "data/workbooks"),
			Endpoint:  strings.TrimSpace(getenv("WORKBOOK_MINIO_ENDPOINT", "")),
			Bucket:    strings.TrimSpace(getenv("WORKBOOK_MINIO_BUCKET", "workbooks")),
			AccessKey: strings.TrimSpace(getenv("WORKBOOK_MINIO_ACCESS_KEY", "")),
			SecretKey: strings.TrimSpace(getenv("WORKBOOK_MINIO_SECRET_KEY", "")),
			UseSSL:    getenvBool("WORKBOOK_MINIO_SSL", false),
		},
		Inbox: InboxConfig{
			Dir: getenv("INBOX_DIR", "data/inbox"),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:      getenvDuration("SCHEDULER_RUN_INTERVAL", 2*time.Minute),
			SubjectHint:      getenv("SCHEDULER_SUBJECT_HINT", "healthcheck"),
			LookbackHours:    getenvInt("SCHEDULER_LOOKBACK_HOURS", 240),
			EnabledJobs:      parseList(getenv("SCHEDULER_JOBS", "")),
			RetentionEnabled: getenvBool("RETENTION_ENABLED", false),
			RetentionCron:    getenv("RETENTION_CRON", "0 3 * * *"),
			RetentionMonths:  getenvInt("RETENTION_MONTHS", 6),
			Timezone:         getenv("RETENTION_TIMEZONE", "UTC"),
		},
		Telemetry: TelemetryConfig{
			DeploymentEnv:  strings.TrimSpace(getenv("DEPLOYMENT_ENV", "")),
			ServiceVersion: strings.TrimSpace(getenv("SERVICE_VERSION", "")),
			LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:    getenvBool("OTEL_ENABLED", false),
			OtelProtocol:   otlpProtocol(),
			SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			SlowQuery:      getenvDuration("LOG_SQL_SLOW_THRESHOLD", 500*time.Millisecond),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:  strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: getenv("METRICS_PUSH_TOKEN", ""),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// otlpProtocol prefers the traces-specific protocol variable.
func otlpProtocol() string {
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); v != "" {
		return strings.ToLower(v)
	}
	return strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
