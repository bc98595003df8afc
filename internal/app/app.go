package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/example/blog-cms/internal/auth"
	"github.com/example/blog-cms/internal/cache"
	"github.com/example/blog-cms/internal/config"
	"github.com/example/blog-cms/internal/db"
	"github.com/example/blog-cms/internal/search"
	"github.com/example/blog-cms/internal/service"
	"github.com/example/blog-cms/internal/storage"
	"github.com/example/blog-cms/internal/transport/http"
)

type Application struct {
	Config     *config.Config
	Log        *slog.Logger
	DB         *db.Database
	Cache      *cache.RedisClient
	Search     *search.Elastic
	Storage    *storage.Local
	Auth       *auth.Provider
	Posts      *service.PostService
	Categories *service.CategoryService
	Router     http.Router
}

// NewLogger returns a JSON logger at the named level (debug, info, warn, error).
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// Open connects to the database and migrates it. It is enough for commands
// that do not serve HTTP.
func Open(cfg *config.Config) (*db.Database, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return database, nil
}

func Initialize(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	database, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	a := &Application{Config: cfg, Log: logger, DB: database}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var postCache service.Cache
	if cfg.RedisEnabled {
		a.Cache, err = cache.NewRedisClient(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		if err := a.Cache.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, reads go to the database", "addr", cfg.RedisAddr, "error", err)
		}
		postCache = a.Cache
	}

	var indexer service.Indexer
	if cfg.ElasticEnabled {
		a.Search, err = search.NewElastic(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("elasticsearch: %w", err)
		}
		if err := a.Search.EnsurePostsIndex(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure ES index: %w", err)
		}
		indexer = a.Search
	}

	a.Storage, err = storage.NewLocal(cfg.StorageDir, cfg.PublicBaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	a.Auth = auth.NewProvider(database.Gorm, cfg.AuthSecret, cfg.TokenTTL())
	a.Posts = service.NewPostService(database, postCache, indexer, a.Storage, logger)
	a.Categories = service.NewCategoryService(database, a.Posts, logger)

	a.Router = http.NewRouter(cfg, http.Services{
		Posts:      a.Posts,
		Categories: a.Categories,
		Auth:       a.Auth,
		Storage:    a.Storage,
	}, logger)
	return a, nil
}

func (a *Application) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Error("db close", "error", err)
		}
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
}
