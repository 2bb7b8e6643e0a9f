package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-importer/internal/app"
	"github.com/dvloznov/finance-importer/internal/config"
	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/gcsuploader"
	"github.com/dvloznov/finance-importer/internal/logger"
	"github.com/dvloznov/finance-importer/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport()
	case "categorize":
		runCategorize()
	case "locate":
		runLocate()
	case "upload":
		runUpload()
	case "cache":
		runCache()
	case "entries":
		runEntries()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Importer CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import      Import a statement file (CSV, XLSX, XLS, PDF, text) or a gs:// object")
	fmt.Println("  categorize  Categorize a single description and amount")
	fmt.Println("  locate      Print the transactions pattern matching finds in a text file")
	fmt.Println("  upload      Upload a statement file to GCS")
	fmt.Println("  cache       Show or prune the categorization cache (stats|prune)")
	fmt.Println("  entries     List delivered entries for a month")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup loads configuration, applies the -env flag and builds the logger.
func setup(envFile string) (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(envFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg, log
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) *app.App {
	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	return a
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to a .env file (optional)")
	filePath := fs.String("file", "", "Path to a local statement file")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of the statement file")
	project := fs.String("bq-project", "", "BigQuery project for delivery (overrides BQ_PROJECT)")
	dryRun := fs.Bool("dry-run", false, "Categorize without delivering to BigQuery")
	fs.Parse(os.Args[2:])

	if (*filePath == "") == (*gcsURI == "") {
		fmt.Fprintln(os.Stderr, "Usage: cli import (-file PATH | -gcs-uri gs://bucket/object) [-dry-run]")
		os.Exit(1)
	}

	cfg, log := setup(*envFile)
	if *project != "" {
		cfg.Storage.ProjectID = *project
	}
	if *dryRun {
		cfg.Storage.ProjectID = ""
	}
	if *gcsURI != "" {
		cfg.Storage.GCSEnabled = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := build(ctx, cfg, log)
	defer a.Close()

	in := pipeline.Input{SourceURI: *gcsURI}
	if *filePath != "" {
		data, err := os.ReadFile(*filePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read statement file")
		}
		in.Filename = filepath.Base(*filePath)
		in.Data = data
	}

	if a.Sink != nil {
		if err := a.Sink.EnsureTable(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare expenses table")
		}
	}

	res, err := a.Importer.Import(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	printJSON(res)
}

func runCategorize() {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to a .env file (optional)")
	description := fs.String("description", "", "Transaction description")
	amount := fs.String("amount", "", "Transaction amount")
	date := fs.String("date", "", "Transaction date (YYYY-MM-DD, defaults to today)")
	fs.Parse(os.Args[2:])

	if strings.TrimSpace(*description) == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli categorize -description TEXT -amount N [-date YYYY-MM-DD]")
		os.Exit(1)
	}

	value, err := domain.ValidateAmount(*amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *date == "" {
		*date = time.Now().Format(domain.DateLayout)
	}

	cfg, log := setup(*envFile)
	cfg.Storage.Bucket = ""
	cfg.Storage.GCSEnabled = false
	cfg.Storage.ProjectID = ""

	ctx := logger.WithContext(context.Background(), log)
	a := build(ctx, cfg, log)
	defer a.Close()

	out, err := a.Engine.Categorize(ctx, []domain.RawTransaction{
		{Date: *date, Description: *description, Amount: value},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Categorization degraded")
	}

	printJSON(out)
}

func runLocate() {
	fs := flag.NewFlagSet("locate", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a plain-text statement")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli locate -file PATH")
		os.Exit(1)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	txs := pipeline.LocateTransactions(string(data))
	total := decimal.Zero
	for i, tx := range txs {
		fmt.Printf("%3d. %s  %12s  %s\n", i+1, tx.Date, tx.Amount.StringFixed(2), tx.Description)
		total = total.Add(tx.Amount)
	}
	fmt.Printf("\n%d transactions, total %s\n", len(txs), total.StringFixed(2))
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to a .env file (optional)")
	bucketName := fs.String("bucket", "", "GCS bucket name (overrides GCS_BUCKET)")
	objectName := fs.String("object", "", "GCS object name (defaults to statements/YYYY/MM/<uuid>-<filename>)")
	filePath := fs.String("file", "", "Path to local statement file")
	fs.Parse(os.Args[2:])

	cfg, log := setup(*envFile)
	if *bucketName != "" {
		cfg.Storage.Bucket = *bucketName
	}
	if cfg.Storage.Bucket == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}
	if *objectName == "" {
		*objectName = gcsuploader.ObjectName(filepath.Base(*filePath), time.Now())
	}

	ctx := logger.WithContext(context.Background(), log)

	storage, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer storage.Close()

	log.Info().
		Str("bucket", cfg.Storage.Bucket).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	uri, err := storage.UploadFile(ctx, cfg.Storage.Bucket, *objectName, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
	fmt.Printf("Import it with: cli import -gcs-uri %s\n", uri)
}

func runCache() {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to a .env file (optional)")
	fs.Parse(os.Args[2:])

	action := fs.Arg(0)
	if action != "stats" && action != "prune" {
		fmt.Fprintln(os.Stderr, "Usage: cli cache [-env FILE] (stats|prune)")
		os.Exit(1)
	}

	cfg, log := setup(*envFile)
	if cfg.Cache.Driver == "memory" {
		log.Warn().Msg("CACHE_DRIVER is memory; the cache does not outlive this process")
	}
	cfg.LLM.APIKey = ""
	cfg.Storage.Bucket = ""
	cfg.Storage.GCSEnabled = false
	cfg.Storage.ProjectID = ""

	ctx := logger.WithContext(context.Background(), log)
	a := build(ctx, cfg, log)
	defer a.Close()

	if action == "prune" {
		removed, err := a.Cache.Prune(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Prune failed")
		}
		fmt.Printf("Removed %d expired entries\n", removed)
	}

	n, err := a.Cache.Len(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count cache entries")
	}
	fmt.Printf("Driver:   %s\n", cfg.Cache.Driver)
	fmt.Printf("Entries:  %d / %d\n", n, cfg.Cache.Capacity)
	fmt.Printf("TTL:      %s\n", cfg.Cache.TTL)
}

func runEntries() {
	fs := flag.NewFlagSet("entries", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to a .env file (optional)")
	month := fs.String("month", time.Now().Format("2006-01"), "Month to list (YYYY-MM)")
	fs.Parse(os.Args[2:])

	cfg, log := setup(*envFile)
	if !cfg.DeliveryEnabled() {
		log.Fatal().Msg("BQ_PROJECT is required to list entries")
	}
	cfg.LLM.APIKey = ""
	cfg.Storage.Bucket = ""
	cfg.Storage.GCSEnabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := build(ctx, cfg, log)
	defer a.Close()

	entries, err := a.Sink.ListEntries(ctx, *month)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list entries")
	}

	fmt.Printf("\n=== Entries for %s (%d) ===\n", *month, len(entries))
	total := decimal.Zero
	for i, e := range entries {
		fmt.Printf("\n%d. %s\n", i+1, e.Note)
		fmt.Printf("   Date:     %s\n", e.Date)
		fmt.Printf("   Amount:   %s\n", e.Amount.StringFixed(2))
		fmt.Printf("   Category: %s\n", e.Category)
		total = total.Add(e.Amount)
	}
	fmt.Printf("\nTotal: %s\n", total.StringFixed(2))
}
