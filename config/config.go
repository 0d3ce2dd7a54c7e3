package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/fincoach/backend/pkg/database"
	"github.com/fincoach/backend/pkg/redis"
)

// Store drivers for meeting and attendance documents.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Meetings MeetingsConfig
	AWS      AWSConfig
	Email    EmailConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string `env:"PORT" envDefault:"8080"`
	ReadTimeout        int    `env:"READ_TIMEOUT_SEC" envDefault:"30"`
	WriteTimeout       int    `env:"WRITE_TIMEOUT_SEC" envDefault:"30"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:5173"` // comma-separated, or "*"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"` // if set, used as-is
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME" envDefault:"fincoach"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	MaxConns           int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	MaxConnLifetimeMin int   `env:"DB_MAX_CONN_LIFETIME_MIN" envDefault:"30"`
}

// StoreConfig selects where meeting and attendance documents live.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`
}

// MongoConfig holds MongoDB settings, used when Store.Driver is mongo.
type MongoConfig struct {
	URI      string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGO_DB" envDefault:"fincoach"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	ExpireHours int    `env:"JWT_EXPIRE_HOURS" envDefault:"24"`
	CookieName  string `env:"JWT_COOKIE_NAME" envDefault:"token"`
}

// MeetingsConfig holds the live window and listing settings.
type MeetingsConfig struct {
	Timezone          string `env:"MEETING_TIMEZONE" envDefault:"UTC"`
	LiveWindowMinutes int    `env:"MEETING_LIVE_WINDOW_MINUTES" envDefault:"120"`
	ListMaxLimit      int    `env:"MEETING_LIST_MAX_LIMIT" envDefault:"100"`
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region               string `env:"AWS_REGION"`
	AccessKeyID          string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey      string `env:"AWS_SECRET_ACCESS_KEY"`
	RecordingsBucket     string `env:"AWS_S3_RECORDINGS_BUCKET" envDefault:"fincoach-recordings"`
	PresignExpireMinutes int    `env:"AWS_PRESIGN_EXPIRE_MINUTES" envDefault:"15"`
}

// EmailConfig for SMTP delivery of registration confirmations.
type EmailConfig struct {
	FromAddress string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@example.com"`
	FromName    string `env:"EMAIL_FROM_NAME" envDefault:"FinCoach Sessions"`
	SMTPHost    string `env:"SMTP_HOST"`
	SMTPPort    int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser    string `env:"SMTP_USER"`
	SMTPPass    string `env:"SMTP_PASS"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Namespace  string `env:"METRICS_NAMESPACE" envDefault:"fincoach"`
	WorkerPort string `env:"WORKER_METRICS_PORT" envDefault:"9091"`
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// PoolOptions returns the pgx pool tuning.
func (c DatabaseConfig) PoolOptions() database.PoolOptions {
	return database.PoolOptions{
		MaxConns:        c.MaxConns,
		MaxConnLifetime: time.Duration(c.MaxConnLifetimeMin) * time.Minute,
	}
}

// Options returns the Redis client settings.
func (c RedisConfig) Options() redis.Options {
	return redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB, PoolSize: c.PoolSize, DialTimeout: 5 * time.Second}
}

// Location returns the reference time zone meeting dates and times are written in.
func (c MeetingsConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LiveWindow returns how long a meeting counts as live after its start.
func (c MeetingsConfig) LiveWindow() time.Duration {
	return time.Duration(c.LiveWindowMinutes) * time.Minute
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMongo:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if _, err := c.Meetings.Location(); err != nil {
		return fmt.Errorf("invalid MEETING_TIMEZONE: %w", err)
	}
	if c.Meetings.LiveWindowMinutes <= 0 {
		return fmt.Errorf("MEETING_LIVE_WINDOW_MINUTES must be positive")
	}
	if c.Meetings.ListMaxLimit <= 0 {
		c.Meetings.ListMaxLimit = 100
	}
	return nil
}
