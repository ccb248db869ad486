// Package config loads storefront settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CartSessionKey      string
	CartTemplateTagName string

	HTTPAddr     string
	GRPCAddr     string
	TemplatesDir string

	SessionBackend       string
	SessionDBPath        string
	SessionCookieName    string
	SessionTTL           time.Duration
	SessionCacheSize     int
	SessionSweepInterval time.Duration

	RabbitURL      string
	RabbitExchange string

	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string
}

// Load reads files (default ".env") into the environment without overriding
// variables already set, then builds the Config. Missing files are skipped.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		CartSessionKey:      getenv("CART_SESSION_KEY", "CART"),
		CartTemplateTagName: getenv("CART_TEMPLATE_TAG_NAME", "get_cart"),

		HTTPAddr: getenv("STOREFRONT_HTTP_ADDR", ":8080"),
		GRPCAddr: getenv("STOREFRONT_GRPC_ADDR", ":50051"),

		TemplatesDir: os.Getenv("STOREFRONT_TEMPLATES_DIR"),

		SessionBackend:    getenv("SESSION_BACKEND", "sqlite"),
		SessionDBPath:     getenv("SESSION_DB_PATH", "./data/sessions.db"),
		SessionCookieName: getenv("SESSION_COOKIE_NAME", "sessionid"),

		RabbitURL:      os.Getenv("RABBIT_URL"),
		RabbitExchange: getenv("RABBIT_EXCHANGE", "domain_events"),

		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 14*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SessionSweepInterval, err = getDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SessionCacheSize, err = getInt("SESSION_CACHE_SIZE", 1024); err != nil {
		return Config{}, err
	}

	switch cfg.SessionBackend {
	case "sqlite", "memory":
	default:
		return Config{}, fmt.Errorf("SESSION_BACKEND: unknown backend %q", cfg.SessionBackend)
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL: must be positive, got %s", cfg.SessionTTL)
	}
	if cfg.SessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("SESSION_SWEEP_INTERVAL: must be positive, got %s", cfg.SessionSweepInterval)
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
