package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Email    EmailConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Stripe   StripeConfig
	QR       QRConfig
	Auth     AuthConfig
	Waitlist WaitlistConfig
}

type ServerConfig struct {
	Port           string
	PaymentPort    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	RateLimit      int
}

type LogConfig struct {
	Dir   string
	Level string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	Registrations string
	Waitlist      string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration

	// AutoMigrate runs pending migrations at startup.
	AutoMigrate   bool
	MigrationsDir string
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	FrontendURL   string
	LockTTL       time.Duration
	EventTTL      time.Duration
}

func (s StripeConfig) Enabled() bool {
	return s.SecretKey != ""
}

type QRConfig struct {
	Secret string
	Size   int
}

type AuthConfig struct {
	Issuer     string
	Audience   string
	HMACSecret string
}

type WaitlistConfig struct {
	PromotionAttempts int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8080"),
			PaymentPort:    getEnv("PAYMENT_PORT", ":8081"),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimit:      getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("SMTP_FROM", "no-reply@events.local"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "registration_user"),
			Password:     getEnv("DB_PASSWORD", "registration_pass"),
			Database:     getEnv("DB_NAME", "registrations"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,

			AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", true),
			MigrationsDir: getEnv("MIGRATIONS_DIR", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "registration-notifications"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				Registrations: getEnv("KAFKA_TOPIC_REGISTRATIONS", "registration-events"),
				Waitlist:      getEnv("KAFKA_TOPIC_WAITLIST", "waitlist-events"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "inr"),
			FrontendURL:   getEnv("FRONTEND_URL", "http://localhost:3000"),
			LockTTL:       getEnvDuration("CHECKOUT_LOCK_TTL", 5*time.Minute),
			EventTTL:      getEnvDuration("STRIPE_EVENT_TTL", 72*time.Hour),
		},
		QR: QRConfig{
			Secret: getEnv("QR_SECRET", "change-me"),
			Size:   getEnvInt("QR_SIZE", 256),
		},
		Auth: AuthConfig{
			Issuer:     getEnv("AUTH_ISSUER", ""),
			Audience:   getEnv("AUTH_AUDIENCE", ""),
			HMACSecret: getEnv("AUTH_HMAC_SECRET", ""),
		},
		Waitlist: WaitlistConfig{
			PromotionAttempts: getEnvInt("WAITLIST_PROMOTION_ATTEMPTS", 5),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
