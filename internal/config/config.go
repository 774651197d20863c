package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from the environment.
type Config struct {
	AppEnv   string
	LogLevel string

	// Storage. Driver is "sqlite" or "postgres".
	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	HTTPListenAddr   string
	MetricsNamespace string

	// Messaging gateway boundary.
	GatewayBaseURL       string
	GatewayToken         string
	GatewayTimeout       time.Duration
	WebhookSecret        string
	ConversationStateTTL time.Duration

	// Shop settings.
	AdminIDs       []int64
	ChannelID      int64
	PaymentCard    string
	SupportContact string
	PickupAddress  string
	CourierArea    string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseDriver:       strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SQLitePath:           getEnv("SQLITE_PATH", "data/shop.db"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		HTTPListenAddr:       getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsNamespace:     getEnv("METRICS_NAMESPACE", "slotshop"),
		GatewayBaseURL:       os.Getenv("GATEWAY_BASE_URL"),
		GatewayToken:         os.Getenv("GATEWAY_TOKEN"),
		WebhookSecret:        os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		PaymentCard:          getEnv("PAYMENT_CARD", "2200 1539 9409 0240"),
		SupportContact:       getEnv("SUPPORT_CONTACT", "@BollShop"),
		PickupAddress:        getEnv("PICKUP_ADDRESS", "Moscow, Novokosino metro"),
		CourierArea:          getEnv("COURIER_AREA", "Moscow"),
		GatewayTimeout:       getDuration("GATEWAY_TIMEOUT", 15*time.Second),
		ConversationStateTTL: getDuration("CONVERSATION_STATE_TTL", 30*time.Minute),
	}

	switch cfg.DatabaseDriver {
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	cfg.RedisTLS = getBool("REDIS_TLS", false)

	if cfg.ChannelID, err = getInt64("CHANNEL_ID", 0); err != nil {
		return nil, err
	}

	if cfg.AdminIDs, err = parseIDList(os.Getenv("ADMIN_IDS")); err != nil {
		return nil, err
	}
	if len(cfg.AdminIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_IDS must list at least one admin id")
	}

	return cfg, nil
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse ADMIN_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return val, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return val, nil
}

func getBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	return raw == "1" || raw == "true" || raw == "yes"
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return val
}
