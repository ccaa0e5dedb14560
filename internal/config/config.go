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
	LogLevel string

	DatabaseURL string

	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	LedgerServer            string
	LedgerName              string
	LedgerTimeout           time.Duration
	SignerFormat            string
	SignerPublic            string
	SignerSecret            string
	IntentClaimSourceHandle string

	DedupeEnabled      bool
	DedupeRedisEnabled bool
	DedupeTTL          time.Duration
	RedisURL           string

	ArchiveEnabled   bool
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool

	OTELTracingEnabled       bool
	OTELExporterOTLPEndpoint string
	OTELExporterOTLPInsecure bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPPort:                 getEnv("HTTP_PORT", "3000"),
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		CORSAllowedOrigins:       splitCSV(getEnv("CORS_ORIGIN", "*")),
		MaxBodyBytes:             int64(getEnvInt("MAX_BODY_BYTES", 50*1024*1024)),
		LedgerServer:             os.Getenv("LEDGER_SERVER"),
		LedgerName:               os.Getenv("LEDGER_NAME"),
		SignerFormat:             getEnv("SIGNER_FORMAT", "ed25519-raw"),
		SignerPublic:             os.Getenv("SIGNER_PUBLIC"),
		SignerSecret:             os.Getenv("SIGNER_SECRET"),
		IntentClaimSourceHandle:  getEnv("INTENT_CLAIM_SOURCE_HANDLE", "servibanca"),
		DedupeEnabled:            getEnvBool("EVENT_DEDUPE_ENABLED", true),
		DedupeRedisEnabled:       getEnvBool("EVENT_DEDUPE_REDIS_ENABLED", false),
		RedisURL:                 getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ArchiveEnabled:           getEnvBool("EVIDENCE_ARCHIVE_ENABLED", false),
		ArchiveEndpoint:          os.Getenv("EVIDENCE_ARCHIVE_ENDPOINT"),
		ArchiveAccessKey:         os.Getenv("EVIDENCE_ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey:         os.Getenv("EVIDENCE_ARCHIVE_SECRET_KEY"),
		ArchiveBucket:            getEnv("EVIDENCE_ARCHIVE_BUCKET", "collections-evidence"),
		ArchiveUseSSL:            getEnvBool("EVIDENCE_ARCHIVE_USE_SSL", true),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", false),
		OTELExporterOTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}

	ledgerTimeout, err := time.ParseDuration(getEnv("LEDGER_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("parse LEDGER_TIMEOUT: %w", err)
	}
	cfg.LedgerTimeout = ledgerTimeout

	dedupeTTL, err := time.ParseDuration(getEnv("EVENT_DEDUPE_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("parse EVENT_DEDUPE_TTL: %w", err)
	}
	cfg.DedupeTTL = dedupeTTL

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.LedgerServer == "" {
		return errors.New("LEDGER_SERVER is required")
	}
	if c.LedgerName == "" {
		return errors.New("LEDGER_NAME is required")
	}
	if c.SignerPublic == "" || c.SignerSecret == "" {
		return errors.New("SIGNER_PUBLIC and SIGNER_SECRET are required")
	}
	if c.ArchiveEnabled && c.ArchiveEndpoint == "" {
		return errors.New("EVIDENCE_ARCHIVE_ENDPOINT is required when archive is enabled")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
