package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-importer/internal/api/handlers"
	"github.com/dvloznov/finance-importer/internal/api/middleware"
	"github.com/dvloznov/finance-importer/internal/app"
	"github.com/dvloznov/finance-importer/internal/config"
	"github.com/dvloznov/finance-importer/internal/jobs/inmemory"
	"github.com/dvloznov/finance-importer/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		envFile = flag.String("env", ".env", "Path to a .env file (optional)")
		port    = flag.String("port", "", "HTTP server port (overrides PORT)")
		workers = flag.Int("workers", inmemory.DefaultWorkers, "Number of import workers")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	if a.Sink != nil {
		if err := a.Sink.EnsureTable(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare expenses table")
		}
	}
	if cfg.Cache.PruneSchedule != "off" {
		pruner, err := app.StartCachePruner(ctx, a.Cache, cfg.Cache.PruneSchedule)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule cache pruning")
		}
		defer pruner.Stop()
	}
	if cfg.Server.APIToken == "" {
		log.Warn().Msg("API_TOKEN not set - API endpoints are unauthenticated")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", *workers).Msg("Starting import workers")
		if err := jobQueue.Start(workerCtx, app.ImportJobHandler(a.Importer)); err != nil {
			log.Error().Err(err).Msg("Import workers stopped with error")
		}
	}()

	// Initialize handlers
	importsHandler := handlers.NewImportsHandler(jobQueue, log)
	categoriesHandler := handlers.NewCategoriesHandler(a.Engine, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/imports", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if r.URL.Query().Get("gcs_uri") != "" && a.Storage == nil {
				middleware.WriteError(w, http.StatusServiceUnavailable, "GCS input is not configured")
				return
			}
			importsHandler.CreateImport(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categorize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			categoriesHandler.Categorize(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			categoriesHandler.ListCategories(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	if a.Sink != nil {
		entriesHandler := handlers.NewEntriesHandler(a.Sink, log)
		mux.HandleFunc("/api/entries", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				entriesHandler.ListEntries(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})
	}

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"delegate": a.Delegate.Configured(),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(log)(
				middleware.CORS(
					middleware.Auth(cfg.Server.APIToken)(mux),
				),
			),
		),
	)

	// Synchronous categorization waits on the delegate.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight imports finish before the workers are cancelled
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
