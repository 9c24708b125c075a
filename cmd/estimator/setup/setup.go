// Package setup wires configuration into a ready estimate.Estimator for the
// estimator binaries.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"fuelagent"
	"fuelagent/estimate"
	"fuelagent/hpb"
	"fuelagent/imaging"
	"fuelagent/llm"
	"fuelagent/llm/bedrock"
	"fuelagent/llm/gemini"
	"fuelagent/llm/mock"
	"fuelagent/llm/ollama"
	"fuelagent/notify"
	"fuelagent/reference"
	"fuelagent/reference/storage"
	"fuelagent/rotation"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Model     fuelagent.ModelConfig
	Rotation  fuelagent.RotationConfig
	Reference fuelagent.ReferenceConfig
	Pipeline  fuelagent.PipelineConfig
	Notify    fuelagent.NotifyConfig
}

// LoadConfig decodes every config struct from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	for _, target := range []any{&cfg.Model, &cfg.Rotation, &cfg.Reference, &cfg.Pipeline, &cfg.Notify} {
		if err := envdecode.Decode(target); err != nil {
			return Config{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return cfg, nil
}

type Options struct {
	// DryRun swaps every model and embedding call for the scripted demo model.
	DryRun bool

	// AttemptLogger overrides the logger selected by ATTEMPT_LOGS.
	AttemptLogger fuelagent.AttemptLogger
}

// App holds the wired pipeline and the resources that must be closed.
type App struct {
	Estimator *estimate.Estimator
	Catalog   *reference.MemoryCatalog
	Matchers  reference.MatcherFactory
	Plan      rotation.Plan
	Store     rotation.Store

	closers []func() error
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func Build(ctx context.Context, cfg Config, opts Options) (*App, error) {
	app := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	gen, emb, err := newModels(cfg.Model, opts.DryRun)
	if err != nil {
		return nil, err
	}

	plan, err := loadPlan(cfg.Rotation)
	if err != nil {
		return nil, err
	}
	app.Plan = plan

	store, err := app.newStore(ctx, cfg.Rotation, cfg.Model.AWSRegion)
	if err != nil {
		return nil, err
	}
	app.Store = store

	catalog, err := app.loadCatalog(ctx, cfg.Reference, cfg.Model.AWSRegion)
	if err != nil {
		return nil, err
	}
	app.Catalog = catalog
	slog.Info("SETUP: Reference catalog loaded", "entries", catalog.Len())

	mode, err := reference.ParseMode(cfg.Reference.Mode)
	if err != nil {
		return nil, err
	}
	matchers, err := reference.NewMatcherFactory(mode, catalog, catalog, emb)
	if err != nil {
		return nil, err
	}
	app.Matchers = matchers

	logger := opts.AttemptLogger
	if logger == nil {
		if logger, err = app.newAttemptLogger(cfg.Pipeline.AttemptLogs, cfg.Model.Provider); err != nil {
			return nil, err
		}
	}

	var notifier estimate.Notifier
	if cfg.Notify.SlackWebhookURL != "" {
		notifier = notify.NewExhaustionAlert(notify.NewWebhook(cfg.Notify.SlackWebhookURL, http.DefaultClient), cfg.Notify.SlackChannel)
	}

	app.Estimator = estimate.New(
		gen,
		matchers,
		app.newLookup(cfg.Reference, catalog, opts.DryRun),
		rotation.NewController(plan, store, logger),
		imaging.NewNormalizer(cfg.Pipeline.ImageQuality, cfg.Pipeline.ImageSpill),
		estimate.Options{
			TopK:          cfg.Reference.TopK,
			CallTimeout:   cfg.Model.CallTimeout,
			LookupTimeout: cfg.Reference.DetailsTimeout,
			Notifier:      notifier,
		},
	)

	ok = true
	return app, nil
}

type model interface {
	llm.Generator
	llm.Embedder
}

func newModels(cfg fuelagent.ModelConfig, dryRun bool) (llm.Generator, llm.Embedder, error) {
	if dryRun {
		slog.Info("SETUP: Dry run, using scripted demo model")
		return mock.NewDemoRouter(), &mock.Embedder{}, nil
	}

	opts := llm.Options{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature, TopP: cfg.TopP}.WithDefaults()

	var (
		m   model
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		m = gemini.NewClient(gemini.ClientOpts{
			BaseURL:        cfg.GeminiBaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
			HTTPClient:     &http.Client{Timeout: cfg.CallTimeout},
			Options:        opts,
		})
	case "bedrock":
		m = bedrock.NewLLMClient(bedrock.ProfileFactory(cfg.AWSRegion), bedrock.LLMOptions{
			Options:        opts,
			EmbeddingModel: cfg.EmbeddingModel,
		})
	case "ollama":
		m, err = ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint:   cfg.OllamaEndpoint,
			EmbeddingModel: cfg.EmbeddingModel,
			HTTPClient:     &http.Client{Timeout: cfg.CallTimeout},
			Options:        opts,
		})
	case "mock":
		return mock.NewDemoRouter(), &mock.Embedder{}, nil
	default:
		err = fmt.Errorf("unknown LLM_PROVIDER %q", cfg.Provider)
	}
	if err != nil {
		return nil, nil, err
	}
	slog.Info("SETUP: Model provider configured", "provider", cfg.Provider)
	return m, m, nil
}

func loadPlan(cfg fuelagent.RotationConfig) (rotation.Plan, error) {
	if cfg.PlanPath != "" {
		data, err := os.ReadFile(cfg.PlanPath)
		if err != nil {
			return rotation.Plan{}, fmt.Errorf("failed to read rotation plan: %w", err)
		}
		return rotation.ParsePlan(data, os.Getenv)
	}
	return rotation.PlanFromLists(cfg.Credentials, cfg.Models, os.Getenv)
}

func (a *App) newStore(ctx context.Context, cfg fuelagent.RotationConfig, region string) (rotation.Store, error) {
	switch strings.ToLower(cfg.StateBackend) {
	case "memory":
		return rotation.NewMemoryStore(), nil
	case "sqlite":
		s, err := rotation.NewSQLiteStore(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "s3":
		if cfg.StateBucket == "" {
			return nil, fmt.Errorf("ROTATION_STATE_S3_BUCKET must be set for the s3 backend")
		}
		client, err := newS3Client(ctx, region)
		if err != nil {
			return nil, err
		}
		return rotation.NewS3Store(client, cfg.StateBucket, cfg.StateKey), nil
	}
	return nil, fmt.Errorf("unknown ROTATION_STATE_BACKEND %q", cfg.StateBackend)
}

// loadCatalog prefers a JSON snapshot (file, then S3) and falls back to the
// SQLite dataset. The result is always held in memory.
func (a *App) loadCatalog(ctx context.Context, cfg fuelagent.ReferenceConfig, region string) (*reference.MemoryCatalog, error) {
	switch {
	case cfg.SnapshotPath != "":
		return reference.LoadSnapshot(ctx, storage.NewFileSource(cfg.SnapshotPath))
	case cfg.SnapshotBucket != "":
		client, err := newS3Client(ctx, region)
		if err != nil {
			return nil, err
		}
		return reference.LoadSnapshot(ctx, storage.NewS3Source(client, cfg.SnapshotBucket, cfg.SnapshotKey))
	}

	db, err := reference.NewSQLiteCatalog(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return reference.Preload(ctx, db)
}

func (a *App) newLookup(cfg fuelagent.ReferenceConfig, catalog reference.Catalog, dryRun bool) hpb.Lookup {
	var lookup hpb.Lookup = hpb.NewCatalogLookup(catalog)
	if cfg.DetailsBaseURL != "" && !dryRun {
		lookup = hpb.NewClient(cfg.DetailsBaseURL, &http.Client{Timeout: cfg.DetailsTimeout})
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		lookup = hpb.NewCachedLookup(lookup, rdb, cfg.RedisTTL)
	}
	return lookup
}

func (a *App) newAttemptLogger(kind, provider string) (fuelagent.AttemptLogger, error) {
	switch strings.ToLower(kind) {
	case "", "stdout":
		return fuelagent.NewStdoutAttemptLogger(), nil
	case "none":
		return fuelagent.NewNoOpAttemptLogger(), nil
	case "file":
		path := fuelagent.NewAttemptLogFilePath(provider)
		if err := os.MkdirAll("./logs", 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create attempt log file: %w", err)
		}
		l := fuelagent.NewFileAttemptLogger(f)
		a.closers = append(a.closers, f.Close, l.Flush)
		return l, nil
	}
	return nil, fmt.Errorf("unknown ATTEMPT_LOGS %q", kind)
}

func newS3Client(ctx context.Context, region string) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}
