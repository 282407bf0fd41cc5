package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string

	PaymentSecret  string
	CommissionRate float64
	HoldTTL        time.Duration
	StorageTimeout time.Duration
	ExpirySchedule string
	Currency       string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	MidtransServerKey  string
	MidtransProduction bool

	BrevoAPIKey     string
	EmailSender     string
	EmailSenderName string

	OTLPEndpoint string
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, reading from system environment variables")
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		PaymentSecret:      os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		CommissionRate:     getFloat("PLATFORM_COMMISSION_RATE", 0.20),
		HoldTTL:            getDuration("HOLD_TTL", 10*time.Minute),
		StorageTimeout:     getDuration("STORAGE_TIMEOUT", 3*time.Second),
		ExpirySchedule:     getEnv("EXPIRY_SCHEDULE", "@every 1m"),
		Currency:           getEnv("DEFAULT_CURRENCY", "INR"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "notifications"),
		MidtransServerKey:  os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransProduction: os.Getenv("MIDTRANS_ENV") == "production",
		BrevoAPIKey:        os.Getenv("BREVO_API_KEY"),
		EmailSender:        os.Getenv("EMAIL_SENDER"),
		EmailSenderName:    os.Getenv("EMAIL_SENDER_NAME"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.CommissionRate < 0 || cfg.CommissionRate > 1 {
		slog.Warn("commission rate out of range, falling back to default", "rate", cfg.CommissionRate)
		cfg.CommissionRate = 0.20
	}
	if cfg.PaymentSecret == "" {
		slog.Warn("PAYMENT_WEBHOOK_SECRET is not set, every payment callback will fail verification")
	}

	slog.Info("config loaded",
		"port", cfg.Port,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"commission_rate", cfg.CommissionRate,
		"hold_ttl", cfg.HoldTTL.String())
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float in environment", "key", key, "value", v)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in environment", "key", key, "value", v)
		return fallback
	}
	return d
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
