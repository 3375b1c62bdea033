package app

import (
	"context"
	"fmt"
	"log"

	"github.com/cocdeshijie/MikaniroBytes/config"
	"github.com/cocdeshijie/MikaniroBytes/internal/cache"
	"github.com/cocdeshijie/MikaniroBytes/internal/mq"
	"github.com/cocdeshijie/MikaniroBytes/internal/preview"
	"github.com/cocdeshijie/MikaniroBytes/internal/repo"
	"github.com/cocdeshijie/MikaniroBytes/internal/service"
	"github.com/cocdeshijie/MikaniroBytes/internal/storage"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"gorm.io/gorm"
)

// App holds the process-wide dependencies shared by the server, the worker and the CLI.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Cache    cache.Cache
	Tokens   *utils.TokenManager
	Uploads  *storage.LocalStore
	Previews *storage.LocalStore
	Runner   *preview.Runner

	Settings *service.SettingsService
	Upload   *service.UploadService
	Files    *service.FileService
	Auth     *service.AuthService
	Admin    *service.AdminService

	closers []func()
}

// New opens storage, the database and the cache, seeds the built-in rows and wires the services.
// Previews are scheduled according to cfg.PreviewMode.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	if err := cfg.Storage.EnsureDirs(); err != nil {
		return err
	}
	uploads, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		return err
	}
	previews, err := storage.NewLocalStore(cfg.Storage.PreviewDir)
	if err != nil {
		return err
	}
	a.Uploads, a.Previews = uploads, previews

	db, err := repo.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := repo.Seed(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed database: %w", err)
	}

	a.Cache = a.openCache(ctx)
	a.Tokens = utils.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)

	registry := preview.DefaultRegistry(previews, cfg.Storage.PreviewSize)
	a.Runner = preview.NewRunner(db, uploads, registry)
	scheduler := a.scheduler()

	files := repo.NewFileStore(db)
	a.Settings = service.NewSettingsService(db, a.Cache, cfg.CacheTTL, cfg.Storage.DefaultPathTemplate)
	a.Upload = service.NewUploadService(files, uploads, a.Settings, registry, scheduler, cfg.Storage, cfg.BaseURL)
	a.Files = service.NewFileService(files, uploads, previews, cfg.BaseURL)
	a.Auth = service.NewAuthService(db, a.Tokens, a.Settings, a.Cache, cfg.CacheTTL)
	a.Admin = service.NewAdminService(db, files, a.Files, a.Settings)
	return nil
}

func (a *App) openCache(ctx context.Context) cache.Cache {
	cfg := a.Config
	if cfg.CacheBackend == config.CacheBackendRedis {
		client, err := repo.NewRedis(ctx, cfg)
		if err == nil {
			a.closers = append(a.closers, func() { client.Close() })
			return cache.NewRedisCache(client)
		}
		log.Printf("cache: %v, using in-process cache", err)
	}
	return cache.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL)
}

func (a *App) scheduler() preview.Scheduler {
	cfg := a.Config
	switch cfg.PreviewMode {
	case config.PreviewModeOff:
		return preview.NoopScheduler{}
	case config.PreviewModeRabbitMQ:
		publisher := mq.NewPublisher(cfg.RabbitMQURL)
		a.closers = append(a.closers, publisher.Close)
		return preview.NewQueueScheduler(publisher)
	default:
		local := preview.NewLocalScheduler(a.Runner, cfg.PreviewConcurrency, cfg.PreviewQueueSize)
		a.closers = append(a.closers, local.Close)
		return local
	}
}

// Close drains queued previews and releases connections, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
