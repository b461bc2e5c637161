package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"lumen-backend/internal/cache"
	"lumen-backend/internal/catalog"
	"lumen-backend/internal/explain"
	"lumen-backend/internal/extract"
	"lumen-backend/internal/feedback"
	"lumen-backend/internal/jobs"
	"lumen-backend/internal/lifecycle"
	"lumen-backend/internal/llm"
	openai "lumen-backend/internal/llm/openai"
	"lumen-backend/internal/queue"
	"lumen-backend/internal/results"
	"lumen-backend/internal/server"
	"lumen-backend/internal/shared/config"
	"lumen-backend/internal/shared/storage/db"
	"lumen-backend/internal/shared/storage/object"
	localstore "lumen-backend/internal/shared/storage/object/local"
	s3store "lumen-backend/internal/shared/storage/object/s3"
)

const redisPingTimeout = 5 * time.Second

// DBOptions picks the connection pool profile. The worker overrides
// this with db.DefaultWorkerOptions before Build.
var DBOptions = db.DefaultServerOptions

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Redis  *goredis.Client
	Store  object.ObjectStore

	Catalog   *catalog.Store
	Queue     queue.Queue
	Cache     cache.ResultCache
	LLM       llm.Client
	Generator *explain.Generator
	Extractor *extract.Extractor

	JobsRepo     jobs.JobsRepo
	ResultsRepo  results.ResultsRepo
	FeedbackRepo feedback.FeedbackRepo

	Processor *jobs.Processor
	Cleaner   *lifecycle.Cleaner

	JobsHandler     *jobs.Handler
	FeedbackHandler *feedback.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := buildRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(cfg.CatalogDir)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		Redis:   redisClient,
		Store:   store,
		Catalog: cat,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(cfg, server.RouterDeps{
		Jobs:     app.JobsHandler,
		Feedback: app.FeedbackHandler,
		Checks:   buildHealthChecks(app),
	})

	return app, nil
}

// Close releases long-lived connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(DBOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildRedis(ctx context.Context, cfg config.Config) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: redis unreachable; using in-memory queue and cache: %v", err)
			return nil, nil
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func buildServices(app *App) error {
	cfg := app.Config

	if app.DB != nil {
		app.JobsRepo = &jobs.PGRepo{DB: app.DB}
		app.ResultsRepo = &results.PGRepo{DB: app.DB}
		app.FeedbackRepo = &feedback.PGRepo{DB: app.DB}
	} else {
		app.JobsRepo = jobs.NewMemoryRepo()
		app.ResultsRepo = results.NewMemoryRepo()
		app.FeedbackRepo = feedback.NewMemoryRepo()
	}

	if app.Redis != nil {
		app.Queue = queue.NewRedis(app.Redis, cfg.QueueName)
		app.Cache = cache.NewRedis(app.Redis)
	} else {
		app.Queue = queue.NewMemory()
		app.Cache = cache.NewMemory()
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if cfg.LLMProvider == "openai" {
		apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			if !isDevLike(cfg.Env) {
				return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
			}
			log.Printf("bootstrap: OPENAI_API_KEY empty; explanations fall back to catalog summaries")
		} else {
			client, err := openai.NewClient(apiKey, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTimeout)
			if err != nil {
				return err
			}
			llmClient = client
		}
	}
	app.LLM = llmClient

	app.Generator = explain.NewGenerator(llmClient, app.Catalog, cfg.LLMRetryCount, cfg.LLMBackoff)
	app.Extractor = extract.NewExtractor(app.Store, cfg.TesseractPath, cfg.PdftoppmPath)

	app.Processor = jobs.NewProcessor(
		app.JobsRepo,
		app.ResultsRepo,
		app.Catalog,
		app.Extractor,
		app.Generator,
		app.Cache,
		cfg.ResultCacheTTL,
	)
	app.Cleaner = lifecycle.NewCleaner(app.JobsRepo, app.Store, time.Duration(cfg.JobExpiryDays)*24*time.Hour)

	app.JobsHandler = jobs.NewHandler(
		app.JobsRepo,
		app.ResultsRepo,
		app.Cache,
		app.Store,
		app.Queue,
		cfg.MaxFileSizeBytes,
		cfg.AllowedExtensions,
		cfg.ResultCacheTTL,
	)
	app.FeedbackHandler = feedback.NewHandler(app.FeedbackRepo, app.JobsRepo)

	return nil
}

func buildHealthChecks(app *App) map[string]server.HealthCheck {
	checks := map[string]server.HealthCheck{
		"db":    nil,
		"redis": nil,
	}
	if app.DB != nil {
		sqlDB := app.DB
		checks["db"] = func() error { return sqlDB.Ping() }
	}
	if app.Redis != nil {
		redisClient := app.Redis
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
			defer cancel()
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
