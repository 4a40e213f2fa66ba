package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shortlink/internal/cache"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/db/migrations"
	"github.com/sundayezeilo/shortlink/internal/idgen"
	"github.com/sundayezeilo/shortlink/internal/ratelimit"
	"github.com/sundayezeilo/shortlink/internal/server"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const memoryCleanupInterval = 10 * time.Minute

// App holds the application dependencies and configuration.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DBPool  *pgxpool.Pool
	SQLite  *sql.DB
	Redis   *redis.Client
	Service shortener.Service
	Server  *server.Server
	Handler *shortener.Handler
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(os.Stdout, cfg.App.LogLevel, cfg.App.LogFormat)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.Observability.ServiceVersion,
	)

	a := &App{Config: cfg, Logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Shutdown(ctx)
		return nil, err
	}

	kv, err := a.openCache(ctx)
	if err != nil {
		a.Shutdown(ctx)
		return nil, err
	}

	keys := cache.NewKeys(cfg.Shortener.Namespace)
	issuer := idgen.NewIssuer(kv, &idgen.IssuerConfig{
		Key:    keys.Counter(),
		Floor:  cfg.Shortener.CounterFloor,
		Logger: logger,
	})
	if cfg.Shortener.SeedCounter {
		if _, err := issuer.Seed(ctx); err != nil {
			a.Shutdown(ctx)
			return nil, fmt.Errorf("failed to seed issuance counter: %w", err)
		}
	}

	a.Service = shortener.NewService(store, &shortener.ServiceConfig{
		Cache:        kv,
		Keys:         keys,
		Issuer:       issuer,
		BaseURL:      cfg.Server.BaseURL,
		CacheTTL:     cfg.Shortener.CacheTTL,
		VisitTimeout: cfg.Shortener.VisitTimeout,
		Logger:       logger,
	})
	a.Handler = shortener.NewHandler(shortener.HandlerConfig{
		Service:      a.Service,
		Logger:       logger,
		BaseURL:      cfg.Server.BaseURL,
		NotFoundPath: cfg.Server.NotFoundPath,
	})

	a.Server = server.New(cfg, logger, a.Handler, a.newLimiter(keys))

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"db_driver", cfg.Database.Driver,
		"cache_driver", cfg.Redis.Driver,
	)

	return a, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown drains pending visit updates, then closes the backing clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var errs []error

	if a.Service != nil {
		drainCtx, cancel := context.WithTimeout(ctx, a.Config.Shortener.VisitTimeout)
		if err := a.Service.Close(drainCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain visit updates: %w", err))
		}
		cancel()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			a.Logger.Info("redis connection closed")
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database connection closed")
	}

	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sqlite: %w", err))
		} else {
			a.Logger.Info("sqlite database closed")
		}
	}

	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) (shortener.LinkStore, error) {
	cfg := a.Config
	storeCfg := &shortener.StoreConfig{QueryTimeout: cfg.Database.QueryTimeout}

	if cfg.Database.Driver == config.DriverSQLite {
		a.Logger.Info("opening sqlite database", "path", cfg.Database.SQLitePath)

		db, err := shortener.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		a.SQLite = db
		return shortener.NewSQLiteStore(db, storeCfg), nil
	}

	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg.Database.URL(), a.Logger); err != nil {
			return nil, err
		}
	}

	pool, err := connectDatabase(ctx, cfg, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DBPool = pool
	return shortener.NewPostgresStore(pool, storeCfg), nil
}

func (a *App) openCache(ctx context.Context) (cache.Cache, error) {
	cfg := a.Config

	if cfg.Redis.Driver == config.DriverMemory {
		a.Logger.Warn("using in-process cache, counter and rate limits are not shared across instances")
		return cache.NewMemory(memoryCleanupInterval), nil
	}

	client, err := connectRedis(ctx, cfg, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.Redis = client
	return cache.NewRedis(client, cfg.Redis.OpTimeout), nil
}

func (a *App) newLimiter(keys cache.Keys) ratelimit.Limiter {
	cfg := a.Config
	if !cfg.RateLimit.Enabled {
		a.Logger.Warn("rate limiting disabled")
		return nil
	}

	limits := &ratelimit.Config{Limit: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window}
	if a.Redis == nil {
		return ratelimit.NewMemorySlidingWindow(limits)
	}
	return ratelimit.NewRedisSlidingWindow(a.Redis, keys.RateLimit, limits)
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level and format.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// runMigrations brings the Postgres schema up to date.
func runMigrations(databaseURL string, logger *slog.Logger) error {
	m, err := migrations.New(databaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}

// connectRedis opens a client and verifies the server is reachable.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.OpTimeout,
		WriteTimeout: cfg.Redis.OpTimeout,
	})

	logger.Info("connecting to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis connection established")

	return client, nil
}
