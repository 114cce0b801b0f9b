package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseDriver string
	DatabaseURL    string

	SessionTokenIssuer         string
	SessionSigningSecret       string
	SessionSigningKeyEphemeral bool
	SessionTokenTTL            time.Duration

	VerificationCodeTTL             time.Duration
	VerificationCodeStore           string
	VerificationCodeCleanupInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	Notifier     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration

	AuthAbuseFreeAttempts int
	AuthAbuseBaseDelay    time.Duration
	AuthAbuseMultiplier   float64
	AuthAbuseMaxDelay     time.Duration
	AuthAbuseResetWindow  time.Duration

	AuthRateLimitRPM     int
	AuthCodeRateLimitRPM int

	CORSAllowedOrigins []string

	ReadinessProbeTimeout        time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	NotifierDev  = "dev"
	NotifierSMTP = "smtp"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	cfg := &Config{
		Env:                        env,
		HTTPPort:                   getEnv("HTTP_PORT", "8080"),
		DatabaseDriver:             strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		SessionTokenIssuer:         getEnv("SESSION_TOKEN_ISSUER", "shooter-auth"),
		SessionSigningSecret:       os.Getenv("SESSION_SIGNING_SECRET"),
		SessionSigningKeyEphemeral: getEnvBool("SESSION_SIGNING_KEY_EPHEMERAL", false),
		VerificationCodeStore:      strings.ToLower(getEnv("VERIFICATION_CODE_STORE", StoreMemory)),
		RedisAddr:                  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		RedisDB:                    getEnvInt("REDIS_DB", 0),
		RedisPrefix:                getEnv("REDIS_PREFIX", "shooter"),
		Notifier:                   strings.ToLower(getEnv("NOTIFIER", NotifierDev)),
		SMTPHost:                   os.Getenv("SMTP_HOST"),
		SMTPPort:                   getEnvInt("SMTP_PORT", 587),
		SMTPUsername:               os.Getenv("SMTP_USERNAME"),
		SMTPPassword:               os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:                   os.Getenv("SMTP_FROM"),
		AuthAbuseFreeAttempts:      getEnvInt("AUTH_ABUSE_FREE_ATTEMPTS", 5),
		AuthAbuseMultiplier:        getEnvFloat("AUTH_ABUSE_MULTIPLIER", 2),
		AuthRateLimitRPM:           getEnvInt("AUTH_RATE_LIMIT_RPM", 30),
		AuthCodeRateLimitRPM:       getEnvInt("AUTH_CODE_RATE_LIMIT_RPM", 5),
		CORSAllowedOrigins:         splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:4200")),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "shooter-auth"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", false),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"SESSION_TOKEN_TTL", "24h", &cfg.SessionTokenTTL},
		{"VERIFICATION_CODE_TTL", "15m", &cfg.VerificationCodeTTL},
		{"VERIFICATION_CODE_CLEANUP_INTERVAL", "1m", &cfg.VerificationCodeCleanupInterval},
		{"SMTP_TIMEOUT", "10s", &cfg.SMTPTimeout},
		{"AUTH_ABUSE_BASE_DELAY", "2s", &cfg.AuthAbuseBaseDelay},
		{"AUTH_ABUSE_MAX_DELAY", "5m", &cfg.AuthAbuseMaxDelay},
		{"AUTH_ABUSE_RESET_WINDOW", "30m", &cfg.AuthAbuseResetWindow},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dest = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		errs = append(errs, "DATABASE_DRIVER must be one of postgres, sqlite")
	}
	if !c.SessionSigningKeyEphemeral && len(c.SessionSigningSecret) < 32 {
		errs = append(errs, "SESSION_SIGNING_SECRET must be at least 32 chars")
	}
	if c.SessionSigningKeyEphemeral && c.SessionSigningSecret != "" {
		errs = append(errs, "SESSION_SIGNING_SECRET must be empty when SESSION_SIGNING_KEY_EPHEMERAL=true")
	}
	if c.SessionSigningKeyEphemeral && !isLocalLikeEnv(c.Env) {
		errs = append(errs, "SESSION_SIGNING_KEY_EPHEMERAL is only allowed in local environments")
	}
	if c.SessionTokenTTL < time.Minute || c.SessionTokenTTL > 30*24*time.Hour {
		errs = append(errs, "SESSION_TOKEN_TTL must be between 1m and 720h")
	}
	if c.VerificationCodeTTL <= 0 || c.VerificationCodeTTL > 24*time.Hour {
		errs = append(errs, "VERIFICATION_CODE_TTL must be between 1s and 24h")
	}
	if c.VerificationCodeCleanupInterval <= 0 {
		errs = append(errs, "VERIFICATION_CODE_CLEANUP_INTERVAL must be > 0")
	}
	switch c.VerificationCodeStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when VERIFICATION_CODE_STORE=redis")
		}
	default:
		errs = append(errs, "VERIFICATION_CODE_STORE must be one of memory, redis")
	}
	switch c.Notifier {
	case NotifierDev:
		if !isLocalLikeEnv(c.Env) {
			errs = append(errs, "NOTIFIER=dev logs codes and is only allowed in local environments")
		}
	case NotifierSMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			errs = append(errs, "SMTP_HOST and SMTP_FROM are required when NOTIFIER=smtp")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			errs = append(errs, "SMTP_PORT must be a valid port")
		}
		if c.SMTPTimeout <= 0 || c.SMTPTimeout > time.Minute {
			errs = append(errs, "SMTP_TIMEOUT must be between 1ms and 1m")
		}
	default:
		errs = append(errs, "NOTIFIER must be one of dev, smtp")
	}
	if c.AuthAbuseFreeAttempts < 0 {
		errs = append(errs, "AUTH_ABUSE_FREE_ATTEMPTS must be >= 0")
	}
	if c.AuthAbuseBaseDelay <= 0 || c.AuthAbuseMaxDelay < c.AuthAbuseBaseDelay {
		errs = append(errs, "AUTH_ABUSE_MAX_DELAY must be >= AUTH_ABUSE_BASE_DELAY > 0")
	}
	if c.AuthAbuseMultiplier < 1 {
		errs = append(errs, "AUTH_ABUSE_MULTIPLIER must be >= 1")
	}
	if c.AuthAbuseResetWindow <= 0 {
		errs = append(errs, "AUTH_ABUSE_RESET_WINDOW must be > 0")
	}
	if c.AuthRateLimitRPM < 0 || c.AuthCodeRateLimitRPM < 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_RPM and AUTH_CODE_RATE_LIMIT_RPM must be >= 0")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) IsLocal() bool {
	return isLocalLikeEnv(c.Env)
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
