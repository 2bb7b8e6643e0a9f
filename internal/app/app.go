// Package app assembles the importer and its collaborators from configuration.
// Both the API server and the CLI build their dependencies through Build.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/finance-importer/internal/cache"
	"github.com/dvloznov/finance-importer/internal/categorize"
	"github.com/dvloznov/finance-importer/internal/config"
	"github.com/dvloznov/finance-importer/internal/gcsuploader"
	infraBQ "github.com/dvloznov/finance-importer/internal/infra/bigquery"
	"github.com/dvloznov/finance-importer/internal/llm"
	"github.com/dvloznov/finance-importer/internal/llm/gemini"
	"github.com/dvloznov/finance-importer/internal/logger"
	"github.com/dvloznov/finance-importer/internal/pipeline"
	"github.com/dvloznov/finance-importer/internal/textextract"
)

// App holds the wired components. Storage and Sink are nil when the
// corresponding Google Cloud resources are not configured.
type App struct {
	Config   *config.Config
	Cache    *cache.CategorizationCache
	Engine   *categorize.Engine
	Delegate *pipeline.DelegateExtractor
	Importer *pipeline.Importer
	Storage  *gcsuploader.GCSStorageService
	Sink     *infraBQ.EntrySink

	closers []io.Closer
}

// Build opens the cache store, the optional Gemini client and the optional
// Google Cloud clients, and wires them into an Importer.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{Config: cfg}

	store, closer, err := cache.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN)
	if err != nil {
		return nil, fmt.Errorf("app.Build: open cache: %w", err)
	}
	a.closers = append(a.closers, closer)
	a.Cache = cache.New(store, cache.WithTTL(cfg.Cache.TTL), cache.WithCapacity(cfg.Cache.Capacity))

	var rules *categorize.RuleSet
	if cfg.Categorize.RulesFile != "" {
		rules, err = categorize.LoadRules(cfg.Categorize.RulesFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.Build: %w", err)
		}
	}

	gen, err := newGenerator(ctx, cfg.LLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.Build: %w", err)
	}
	if gen == nil {
		log.Warn().Msg("GEMINI_API_KEY not set, delegate tiers disabled")
	}

	a.Engine = categorize.NewEngine(rules, a.Cache, gen,
		categorize.WithModel(cfg.LLM.Model),
		categorize.WithTemperature(cfg.LLM.Temperature),
		categorize.WithBatchSize(cfg.Categorize.BatchSize),
		categorize.WithTimeout(cfg.LLM.Timeout),
	)
	a.Delegate = pipeline.NewDelegateExtractor(gen,
		pipeline.WithExtractionModel(cfg.LLM.Model),
		pipeline.WithExtractionTemperature(cfg.LLM.Temperature),
		pipeline.WithChunkSize(cfg.LLM.ChunkSize),
		pipeline.WithExtractionTimeout(cfg.LLM.Timeout),
	)

	opts := []pipeline.ImporterOption{
		pipeline.WithTextExtractor(textextract.NewPDFExtractor()),
		pipeline.WithDelegate(a.Delegate),
	}

	if cfg.StorageEnabled() {
		a.Storage, err = gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.Build: %w", err)
		}
		a.closers = append(a.closers, a.Storage)
		opts = append(opts, pipeline.WithStorage(a.Storage))
	}

	if cfg.DeliveryEnabled() {
		a.Sink, err = infraBQ.NewEntrySink(ctx, cfg.Storage.ProjectID, cfg.Storage.Dataset, cfg.Storage.Table)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.Build: %w", err)
		}
		a.closers = append(a.closers, a.Sink)
		opts = append(opts, pipeline.WithSink(a.Sink))
	}

	a.Importer = pipeline.NewImporter(a.Engine, opts...)

	log.Info().
		Str("cache", cfg.Cache.Driver).
		Bool("delegate", gen != nil).
		Bool("gcs", a.Storage != nil).
		Bool("bigquery", a.Sink != nil).
		Msg("Application wired")
	return a, nil
}

// newGenerator returns a nil interface, not a typed nil, when no key is set.
func newGenerator(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	client, err := gemini.New(ctx, gemini.Config{APIKey: cfg.APIKey, Model: cfg.Model})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Close releases every opened client, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
