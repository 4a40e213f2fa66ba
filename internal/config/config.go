package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Shortener     ShortenerConfig
	RateLimit     RateLimitConfig
	App           AppConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" required:"true"`
	Host            string        `envconfig:"SERVER_HOST" required:"true"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL" required:"true"`
	NotFoundPath    string        `envconfig:"SERVER_NOT_FOUND_PATH" default:"/?error=not-found"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" required:"true"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" required:"true"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" required:"true"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" required:"true"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if !strings.HasPrefix(c.NotFoundPath, "/") {
		return fmt.Errorf("not-found path must start with /, got %q", c.NotFoundPath)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// DatabaseConfig holds link store configuration.
// Postgres fields are only required when Driver is postgres.
type DatabaseConfig struct {
	Driver       string        `envconfig:"DB_DRIVER" default:"postgres"`
	Host         string        `envconfig:"DB_HOST"`
	Port         string        `envconfig:"DB_PORT" default:"5432"`
	User         string        `envconfig:"DB_USER"`
	Password     string        `envconfig:"DB_PASSWORD"`
	Name         string        `envconfig:"DB_NAME"`
	SSLMode      string        `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns     int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns     int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	QueryTimeout time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"3s"`
	SQLitePath   string        `envconfig:"DB_SQLITE_PATH" default:"shortlink.db"`
	AutoMigrate  bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("invalid driver: %s (must be one of: postgres, sqlite)", c.Driver)
	}

	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL used by the migrator.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// RedisConfig holds cache backend configuration.
type RedisConfig struct {
	Driver      string        `envconfig:"CACHE_DRIVER" default:"redis"`
	Addr        string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password    string        `envconfig:"REDIS_PASSWORD"`
	DB          int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize    int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	OpTimeout   time.Duration `envconfig:"REDIS_OP_TIMEOUT" default:"250ms"`
}

// Validate validates the cache configuration.
func (c *RedisConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverRedis:
	default:
		return fmt.Errorf("invalid cache driver: %s (must be one of: redis, memory)", c.Driver)
	}

	if c.Addr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if c.DB < 0 {
		return fmt.Errorf("redis db cannot be negative")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive")
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("op timeout must be positive")
	}
	return nil
}

// ShortenerConfig holds link issuing and resolution settings.
type ShortenerConfig struct {
	Namespace    string        `envconfig:"SHORTENER_NAMESPACE" default:"shortener"`
	CacheTTL     time.Duration `envconfig:"SHORTENER_CACHE_TTL" default:"24h"`
	CounterFloor int64         `envconfig:"SHORTENER_COUNTER_FLOOR" default:"10000"`
	SeedCounter  bool          `envconfig:"SHORTENER_SEED_COUNTER" default:"true"`
	VisitTimeout time.Duration `envconfig:"SHORTENER_VISIT_TIMEOUT" default:"5s"`
}

// Validate validates the shortener configuration.
func (c *ShortenerConfig) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if strings.Contains(c.Namespace, ":") {
		return fmt.Errorf("namespace cannot contain ':'")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.CounterFloor <= 0 {
		return fmt.Errorf("counter floor must be positive")
	}
	if c.VisitTimeout <= 0 {
		return fmt.Errorf("visit timeout must be positive")
	}
	return nil
}

// RateLimitConfig holds admission control settings for the create endpoint.
type RateLimitConfig struct {
	Enabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Requests <= 0 {
		return fmt.Errorf("requests must be positive")
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	return nil
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" required:"true"`   // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" required:"true"` // debug, info, warn, error
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"` // json, text
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s (must be one of: json, text)", c.LogFormat)
	}
	return nil
}

// ObservabilityConfig holds the identity reported by the health endpoint.
type ObservabilityConfig struct {
	ServiceName    string `envconfig:"SERVICE_NAME" default:"shortlink"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"dev"`
}

// Validate validates the observability configuration.
func (c *ObservabilityConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	return nil
}

type section struct {
	name   string
	target any
	valid  func() error
}

// Load loads configuration from environment variables only.
// (Do .env loading in internal/app for dev, not here.)
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []section{
		{"Server", &cfg.Server, cfg.Server.Validate},
		{"Database", &cfg.Database, cfg.Database.Validate},
		{"Redis", &cfg.Redis, cfg.Redis.Validate},
		{"Shortener", &cfg.Shortener, cfg.Shortener.Validate},
		{"RateLimit", &cfg.RateLimit, cfg.RateLimit.Validate},
		{"App", &cfg.App, cfg.App.Validate},
		{"Observability", &cfg.Observability, cfg.Observability.Validate},
	}

	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
		if err := s.valid(); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}

	return cfg, nil
}
