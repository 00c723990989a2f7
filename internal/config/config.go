package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	DefaultEmailTTLDays  = 1
	MaxEmailTTLDays      = 30
	DefaultCookieTTLDays = 30
	MaxCookieTTLDays     = 365
)

type Config struct {
	HTTPPort      int
	Domain        string
	DBPath        string
	BlobPath      string
	APIToken      string
	EmailTTLDays  int
	CookieTTLDays int
	// FilterRecipientDomain drops recipients whose host is not Domain during
	// fan-out. When disabled every parsed recipient gets a copy regardless of
	// domain.
	FilterRecipientDomain bool
	InboxBlacklist        []string
	IngestRPS             float64
	IngestBurst           int
}

func Load() Config {
	return Config{
		HTTPPort:              getEnvInt("HTTP_PORT", 3080),
		Domain:                getEnvString("DOMAIN_NAME", "localhost"),
		DBPath:                getEnvString("DB_PATH", ""),
		BlobPath:              getEnvString("BLOB_PATH", "./blobs"),
		APIToken:              getEnvString("API_TOKEN", ""),
		EmailTTLDays:          getEnvDays("EMAIL_TTL_DAYS", DefaultEmailTTLDays, MaxEmailTTLDays),
		CookieTTLDays:         getEnvDays("COOKIE_TTL_DAYS", DefaultCookieTTLDays, MaxCookieTTLDays),
		FilterRecipientDomain: getEnvBool("RECIPIENT_DOMAIN_FILTER", true),
		InboxBlacklist:        getEnvList("INBOX_BLACKLIST"),
		IngestRPS:             getEnvFloat("INGEST_RPS", 5),
		IngestBurst:           getEnvInt("INGEST_BURST", 10),
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDays reads a retention period in days and clamps it to [1, max].
// Unset, empty and non-integer values fall back to the default; out-of-range
// values are clamped to the nearest bound.
func getEnvDays(key string, fallback, max int) int {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	if parsed < 1 {
		return 1
	}
	if parsed > max {
		return max
	}
	return parsed
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
