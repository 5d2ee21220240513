package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"admissions-portal/internal/applications"
	"admissions-portal/internal/documents"
	"admissions-portal/internal/form"
	"admissions-portal/internal/queue"
	"admissions-portal/internal/services/health"
	"admissions-portal/internal/shared/config"
	"admissions-portal/internal/shared/server"
	"admissions-portal/internal/shared/server/middleware"
	"admissions-portal/internal/shared/storage/db"
	"admissions-portal/internal/shared/storage/object"
	localstore "admissions-portal/internal/shared/storage/object/local"
	s3store "admissions-portal/internal/shared/storage/object/s3"
	"admissions-portal/internal/shared/telemetry"
)

// App holds shared dependencies and the configured router.
type App struct {
	Config              config.Config
	Router              *gin.Engine
	DB                  *sql.DB
	Store               object.ObjectStore
	Queue               queue.Client
	Form                *form.Definition
	DocumentsRepo       documents.DocumentsRepo
	ApplicationsRepo    applications.Repo
	DocumentsService    *documents.Service
	ApplicationsService *applications.Service
	DocumentsHandler    *documents.Handler
	ApplicationsHandler *applications.Handler
	Health              *health.Service
}

// Build prepares dependencies and wires routes.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Form:   form.Default(),
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	var pinger health.Pinger
	if sqlDB != nil {
		pinger = sqlDB
	}
	app.Health = health.NewService(pinger, cfg.ObjectStoreType, queueClient != nil)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:              cfg,
		Health:              app.Health,
		DocumentHandler:     app.DocumentsHandler,
		ApplicationsHandler: app.ApplicationsHandler,
		RateLimiter:         middleware.NewRateLimiter(nil),
	})
	return app, nil
}

// Close releases the database pool.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.ApplicationsQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.ApplicationsQueueURL)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	if app.DB != nil {
		app.DocumentsRepo = &documents.PGRepo{DB: app.DB}
		app.ApplicationsRepo = &applications.PGRepo{DB: app.DB}
	} else {
		app.DocumentsRepo = documents.NewMemoryRepo()
		app.ApplicationsRepo = applications.NewMemoryRepo()
	}

	app.DocumentsService = &documents.Service{
		Store:         app.Store,
		Repo:          app.DocumentsRepo,
		Kinds:         documents.NewKinds(app.Form.Slots),
		PublicBaseURL: app.Config.PublicBaseURL,
	}
	app.ApplicationsService = &applications.Service{
		Repo: app.ApplicationsRepo,
		Form: app.Form,
		Docs: app.DocumentsService,
	}
	if app.Queue != nil {
		app.ApplicationsService.Queue = app.Queue
	}
	app.DocumentsHandler = documents.NewHandler(app.DocumentsService)
	app.ApplicationsHandler = applications.NewHandler(app.ApplicationsService)

	if app.DocumentsHandler == nil || app.ApplicationsHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}
