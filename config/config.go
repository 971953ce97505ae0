package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	Payment  PaymentConfig
	Kafka    KafkaConfig
	Mail     MailConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    int // requests per minute per client IP, 0 disables
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

// GatewayConfig holds the collect-request API credentials.
type GatewayConfig struct {
	BaseURL     string
	APIKey      string
	PGKey       string // signs collect requests
	CallbackURL string // where the payer lands after paying
	Name        string
	Timeout     time.Duration
	UseStub     bool // issue fake collect requests instead of calling the gateway
}

type PaymentConfig struct {
	WebhookSecret       string
	PaymentExpiry       time.Duration
	ExpirySweepInterval time.Duration // 0 disables the background sweep
}

// MailConfig is the SMTP account receipts are sent from. An empty Host
// disables receipt mail.
type MailConfig struct {
	Host      string
	Port      int
	User      string
	Pass      string
	From      string
	QueueSize int
}

type KafkaConfig struct {
	Brokers []string // empty disables publishing
	Topic   string
}

// Load reads the process environment (optionally seeded from a .env file)
// into a Config. A missing required variable is an error.
func Load() (*Config, error) {
	for _, path := range []string{".env", "config/.env"} {
		if err := godotenv.Load(path); err == nil {
			log.Printf("[config] loaded %s", path)
			break
		}
	}

	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         envOr("PORT", "8080"),
			Env:          envOr("APP_ENV", "development"),
			ReadTimeout:  envDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: envDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RateLimit:    envInt("RATE_LIMIT_PER_MIN", 100),
		},
		Database: DatabaseConfig{
			DSN:             required("DATABASE_DSN"),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: required("JWT_SECRET"),
			AccessExpiry: envDuration("JWT_EXPIRY", 24*time.Hour),
			Issuer:       envOr("JWT_ISSUER", "fee-portal"),
		},
		Gateway: GatewayConfig{
			BaseURL:     strings.TrimRight(required("GATEWAY_BASE_URL"), "/"),
			APIKey:      os.Getenv("GATEWAY_API_KEY"),
			PGKey:       required("GATEWAY_PG_KEY"),
			CallbackURL: envOr("GATEWAY_CALLBACK_URL", "http://localhost:3000/payments/callback"),
			Name:        envOr("GATEWAY_NAME", "edviron"),
			Timeout:     envDuration("GATEWAY_TIMEOUT", 15*time.Second),
			UseStub:     envBool("GATEWAY_STUB", false),
		},
		Payment: PaymentConfig{
			WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
			PaymentExpiry:       envDuration("PAYMENT_EXPIRY", 30*time.Minute),
			ExpirySweepInterval: envDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_TOPIC", "fee-portal.payment-status"),
		},
		Mail: MailConfig{
			Host:      os.Getenv("SMTP_HOST"),
			Port:      envInt("SMTP_PORT", 587),
			User:      os.Getenv("SMTP_USER"),
			Pass:      os.Getenv("SMTP_PASS"),
			From:      os.Getenv("EMAIL_FROM"),
			QueueSize: envInt("MAIL_QUEUE_SIZE", 64),
		},
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if cfg.Payment.WebhookSecret == "" {
		cfg.Payment.WebhookSecret = cfg.Gateway.PGKey
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a boolean, using %t", key, v, fallback)
		return fallback
	}
	return b
}
