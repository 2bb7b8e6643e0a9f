package main

import (
	"context"
	"flag"
	"time"

	"github.com/dvloznov/finance-importer/internal/config"
	infraBQ "github.com/dvloznov/finance-importer/internal/infra/bigquery"
	"github.com/dvloznov/finance-importer/internal/logger"
)

var (
	envFile   = flag.String("env", ".env", "Path to a .env file (optional)")
	projectID = flag.String("project", "", "GCP project ID (overrides BQ_PROJECT)")
	datasetID = flag.String("dataset", "", "BigQuery dataset ID (overrides BQ_DATASET)")
	tableID   = flag.String("table", "", "BigQuery table ID (overrides BQ_TABLE)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	if *projectID != "" {
		cfg.Storage.ProjectID = *projectID
	}
	if *datasetID != "" {
		cfg.Storage.Dataset = *datasetID
	}
	if *tableID != "" {
		cfg.Storage.Table = *tableID
	}
	if !cfg.DeliveryEnabled() {
		log.Fatal().Msg("Error: -project flag or BQ_PROJECT is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	sink, err := infraBQ.NewEntrySink(ctx, cfg.Storage.ProjectID, cfg.Storage.Dataset, cfg.Storage.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer sink.Close()

	log.Info().
		Str("project", cfg.Storage.ProjectID).
		Str("dataset", cfg.Storage.Dataset).
		Str("table", cfg.Storage.Table).
		Msg("Ensuring expenses table")

	if err := sink.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure expenses table")
	}
}
