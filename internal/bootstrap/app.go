package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	googleauth "resumind/internal/auth"
	"resumind/internal/inference"
	"resumind/internal/inference/gemini"
	"resumind/internal/inference/openai"
	"resumind/internal/raster"
	"resumind/internal/resumes"
	"resumind/internal/shared/config"
	"resumind/internal/shared/server"
	"resumind/internal/shared/storage/db"
	"resumind/internal/shared/storage/kv"
	"resumind/internal/shared/storage/kv/memory"
	"resumind/internal/shared/storage/kv/postgres"
	"resumind/internal/shared/storage/kv/redis"
	"resumind/internal/shared/storage/kv/remote"
	"resumind/internal/shared/storage/object"
	localstore "resumind/internal/shared/storage/object/local"
	s3store "resumind/internal/shared/storage/object/s3"
	"resumind/internal/shared/telemetry"
)

const drainTimeout = 10 * time.Second

// App holds shared dependencies and the HTTP router.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Store      object.ObjectStore
	KV         kv.Namespaces
	Inference  inference.Service
	Previews   *raster.URLRegistry
	Records    *resumes.RecordStore
	Resumes    *resumes.Service
	GoogleAuth *googleauth.GoogleService

	closers []func() error
}

// Build prepares every dependency and wires the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := BuildService(ctx, cfg, db.DefaultServerOptions())
	if err != nil {
		return nil, err
	}
	app.GoogleAuth = googleauth.NewGoogleService(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		cfg.UIRedirectURL,
	)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:     cfg,
		Resumes:    resumes.NewHandler(app.Resumes),
		GoogleAuth: app.GoogleAuth,
	})
	return app, nil
}

// BuildService prepares storage, inference and the resume service without
// any HTTP wiring. resumectl uses it directly.
func BuildService(ctx context.Context, cfg config.Config, dbOpts db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store

	if err := app.buildKV(ctx, dbOpts); err != nil {
		app.Close()
		return nil, err
	}

	svc, err := buildInference(ctx, cfg, store)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Inference = svc

	app.Previews = raster.NewURLRegistry(0, nil)
	app.Records = resumes.NewRecordStore(cfg.KVWriteDeadline)
	app.Resumes = &resumes.Service{
		Objects:   store,
		KV:        app.KV,
		Inference: svc,
		Converter: buildConverter(cfg, app.Previews),
		Records:   app.Records,
		Previews:  app.Previews,
		QuotaURL:  cfg.QuotaURL,
	}

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"object_store": cfg.ObjectStoreType,
		"kv_backend":   cfg.KVBackend,
		"llm_provider": cfg.LLMProvider,
		"renderer":     cfg.Renderer,
	})
	return app, nil
}

// Close waits for detached record writes and releases backend connections.
func (a *App) Close() error {
	var errs []error
	if a.Records != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := a.Records.Drain(ctx); err != nil {
			telemetry.Warn("bootstrap.drain_incomplete", map[string]any{"err": err})
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func (a *App) buildKV(ctx context.Context, dbOpts db.Options) error {
	cfg := a.Config
	switch cfg.KVBackend {
	case "postgres":
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(dbOpts))
		if err == nil {
			err = db.RunMigrations(ctx, sqlDB)
			if err != nil {
				sqlDB.Close()
			}
		}
		if err != nil {
			if isDevLike(cfg.Env) {
				telemetry.Warn("bootstrap.kv.fallback", map[string]any{"backend": "postgres", "err": err})
				a.KV = memory.New()
				return nil
			}
			return err
		}
		a.DB = sqlDB
		a.closers = append(a.closers, sqlDB.Close)
		a.KV = &postgres.Backend{DB: sqlDB}
	case "redis":
		backend, err := redis.Dial(ctx, cfg.RedisURL, "")
		if err != nil {
			if isDevLike(cfg.Env) {
				telemetry.Warn("bootstrap.kv.fallback", map[string]any{"backend": "redis", "err": err})
				a.KV = memory.New()
				return nil
			}
			return err
		}
		a.closers = append(a.closers, backend.Close)
		a.KV = backend
	case "remote":
		backend, err := remote.New(cfg.KVRemoteURL, cfg.KVRemoteToken, 0)
		if err != nil {
			return err
		}
		a.KV = backend
	default:
		a.KV = memory.New()
	}
	return nil
}

func buildInference(ctx context.Context, cfg config.Config, docs inference.DocumentReader) (inference.Service, error) {
	var provider inference.Service
	switch cfg.LLMProvider {
	case "openai":
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, docs)
		if err != nil {
			return nil, err
		}
		provider = client
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel, docs)
		if err != nil {
			return nil, err
		}
		provider = client
	default:
		return inference.Placeholder{}, nil
	}

	b := cfg.LLMBreaker
	if !b.Enabled {
		return provider, nil
	}
	return inference.NewBreaker(provider, inference.BreakerSettings{
		Name:             cfg.LLMProvider,
		MaxRequests:      b.MaxRequests,
		MinRequests:      b.MinRequests,
		FailureThreshold: b.FailureThreshold,
		Interval:         b.Interval,
		Timeout:          b.Timeout,
	}), nil
}

func buildConverter(cfg config.Config, previews *raster.URLRegistry) *raster.Converter {
	conv := &raster.Converter{URLs: previews}
	if cfg.Renderer != "none" {
		conv.Renderer = raster.MuPDFRenderer{}
	}
	return conv
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
