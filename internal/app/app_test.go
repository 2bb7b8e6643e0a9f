package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-importer/internal/config"
	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/pipeline"
)

func offlineConfig() *config.Config {
	cfg := config.FromEnv()
	cfg.LLM.APIKey = ""
	cfg.Cache.Driver = "memory"
	cfg.Storage.Bucket = ""
	cfg.Storage.GCSEnabled = false
	cfg.Storage.ProjectID = ""
	return cfg
}

func TestBuild_Offline(t *testing.T) {
	ctx := context.Background()

	a, err := Build(ctx, offlineConfig())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	if a.Storage != nil || a.Sink != nil {
		t.Error("cloud clients should not be created without configuration")
	}
	if a.Delegate.Configured() {
		t.Error("delegate should be unconfigured without an API key")
	}

	res, err := a.Importer.Import(ctx, pipeline.Input{
		Filename: "statement.csv",
		Data:     []byte("Date,Description,Amount\n2024-03-01,UBER TRIP,45.50\n"),
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(res.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", len(res.Transactions))
	}
	if res.Transactions[0].Category != "transport" {
		t.Errorf("Category = %q, want transport", res.Transactions[0].Category)
	}
}

func TestBuild_SQLiteCacheAndRules(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.yaml")
	rules := "- category: Coffee\n  patterns: [starbucks]\n"
	if err := os.WriteFile(rulesPath, []byte(rules), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := offlineConfig()
	cfg.Cache.Driver = "sqlite"
	cfg.Cache.DSN = filepath.Join(dir, "cache.db")
	cfg.Categorize.RulesFile = rulesPath

	a, err := Build(ctx, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	out, err := a.Engine.Categorize(ctx, []domain.RawTransaction{
		{Date: "2024-03-01", Description: "STARBUCKS 123", Amount: decimal.RequireFromString("4.20")},
	})
	if err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	if out[0].Category != "Coffee" {
		t.Errorf("Category = %q, want Coffee", out[0].Category)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown cache driver", func(c *config.Config) { c.Cache.Driver = "memcached" }},
		{"missing rules file", func(c *config.Config) { c.Categorize.RulesFile = "/nonexistent/rules.yaml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := offlineConfig()
			tt.mutate(cfg)
			if _, err := Build(context.Background(), cfg); err == nil {
				t.Fatal("Build() error = nil, want error")
			}
		})
	}
}
