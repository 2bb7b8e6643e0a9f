package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/llm"
	"github.com/dvloznov/finance-importer/internal/pipeline"
)

// MockStorageService is a mock implementation of StorageService for testing.
type MockStorageService struct {
	FetchFromGCSFunc              func(ctx context.Context, gcsURI string) ([]byte, error)
	ExtractFilenameFromGCSURIFunc func(uri string) string
}

func (m *MockStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	if m.FetchFromGCSFunc != nil {
		return m.FetchFromGCSFunc(ctx, gcsURI)
	}
	return []byte("Date,Description,Amount\n2024-01-15,Shop,10.00\n"), nil
}

func (m *MockStorageService) ExtractFilenameFromGCSURI(uri string) string {
	if m.ExtractFilenameFromGCSURIFunc != nil {
		return m.ExtractFilenameFromGCSURIFunc(uri)
	}
	return "mock-file.csv"
}

// MockTextExtractor is a mock implementation of TextExtractor for testing.
type MockTextExtractor struct {
	ExtractTextFunc func(ctx context.Context, data []byte) (string, error)
}

func (m *MockTextExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	if m.ExtractTextFunc != nil {
		return m.ExtractTextFunc(ctx, data)
	}
	return "", nil
}

// MockCategorizer is a mock implementation of Categorizer for testing.
type MockCategorizer struct {
	CategorizeFunc func(ctx context.Context, batch []domain.RawTransaction) ([]domain.CategorizedTransaction, error)
}

func (m *MockCategorizer) Categorize(ctx context.Context, batch []domain.RawTransaction) ([]domain.CategorizedTransaction, error) {
	if m.CategorizeFunc != nil {
		return m.CategorizeFunc(ctx, batch)
	}
	out := make([]domain.CategorizedTransaction, len(batch))
	for i, tx := range batch {
		out[i] = domain.CategorizedTransaction{RawTransaction: tx, Category: "shopping", Confidence: 0.95, Source: domain.TierRule}
	}
	return out, nil
}

// MockSink is a mock implementation of TransactionSink for testing.
type MockSink struct {
	AppendEntriesFunc func(ctx context.Context, month string, entries []domain.StoreEntry) error
	months            []string
	entries           int
}

func (m *MockSink) AppendEntries(ctx context.Context, month string, entries []domain.StoreEntry) error {
	m.months = append(m.months, month)
	m.entries += len(entries)
	if m.AppendEntriesFunc != nil {
		return m.AppendEntriesFunc(ctx, month, entries)
	}
	return nil
}

// MockGenerator is a mock implementation of llm.Generator for testing.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req llm.Request) (string, error)
}

func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	return m.GenerateFunc(ctx, req)
}

func TestImporter_DelimitedFileIsDeliveredByMonth(t *testing.T) {
	sink := &MockSink{}
	im := pipeline.NewImporter(&MockCategorizer{}, pipeline.WithSink(sink))

	data := "Date,Description,Amount\n2024-02-01,Rent,9000\n2024-01-15,Shop,10.00\n2024-01-15,Shop,10.00\n"
	result, err := im.Import(context.Background(), pipeline.Input{Filename: "statement.csv", Data: []byte(data)})

	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
	if result.Format != pipeline.FormatDelimited || result.Source != pipeline.SourceDelimited {
		t.Errorf("Format/Source = %s/%s", result.Format, result.Source)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2 after dedup", len(result.Transactions))
	}
	if strings.Join(sink.months, ",") != "2024-01,2024-02" || sink.entries != 2 {
		t.Errorf("sink months = %v entries = %d", sink.months, sink.entries)
	}
}

func TestImporter_FetchesFromGCS(t *testing.T) {
	var fetched string
	storage := &MockStorageService{
		FetchFromGCSFunc: func(ctx context.Context, gcsURI string) ([]byte, error) {
			fetched = gcsURI
			return []byte("Date,Description,Amount\n2024-01-15,Shop,10.00\n"), nil
		},
	}
	im := pipeline.NewImporter(&MockCategorizer{}, pipeline.WithStorage(storage))

	result, err := im.Import(context.Background(), pipeline.Input{SourceURI: "gs://bucket/jan.csv"})

	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if fetched != "gs://bucket/jan.csv" {
		t.Errorf("fetched %q", fetched)
	}
	if len(result.Transactions) != 1 {
		t.Errorf("got %d transactions, want 1", len(result.Transactions))
	}
}

func TestImporter_DocumentFallsBackToPatternsOnRateLimit(t *testing.T) {
	text := &MockTextExtractor{ExtractTextFunc: func(ctx context.Context, data []byte) (string, error) {
		return "15/01/2024 Checkers Sandton R450.00\n", nil
	}}
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return "", &llm.StatusError{Code: 429, Message: "quota"}
	}}
	im := pipeline.NewImporter(&MockCategorizer{},
		pipeline.WithTextExtractor(text),
		pipeline.WithDelegate(pipeline.NewDelegateExtractor(gen)),
	)

	result, err := im.Import(context.Background(), pipeline.Input{Filename: "statement.pdf", Data: []byte("%PDF-1.4")})

	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Source != pipeline.SourcePattern {
		t.Errorf("Source = %q, want %q", result.Source, pipeline.SourcePattern)
	}
	if len(result.Transactions) != 1 || result.Transactions[0].Description != "Checkers Sandton" {
		t.Errorf("Transactions = %+v", result.Transactions)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "rate limited") {
		t.Errorf("Errors = %v, want the delegate failure recorded", result.Errors)
	}
}

func TestImporter_DelegateResultsPreferred(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return `[{"date":"2024-01-15","description":"Checkers Sandton","amount":450}]`, nil
	}}
	im := pipeline.NewImporter(&MockCategorizer{}, pipeline.WithDelegate(pipeline.NewDelegateExtractor(gen)))

	result, err := im.Import(context.Background(), pipeline.Input{Filename: "notes.txt", Data: []byte("Checkers on the 15th, 450")})

	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Format != pipeline.FormatText || result.Source != pipeline.SourceDelegate {
		t.Errorf("Format/Source = %s/%s", result.Format, result.Source)
	}
	if len(result.Transactions) != 1 {
		t.Errorf("got %d transactions, want 1", len(result.Transactions))
	}
}

func TestImporter_Failures(t *testing.T) {
	extractErr := errors.New("image-only document")

	tests := []struct {
		name  string
		im    *pipeline.Importer
		input pipeline.Input
		want  error
	}{
		{
			name:  "empty input",
			im:    pipeline.NewImporter(&MockCategorizer{}),
			input: pipeline.Input{Filename: "a.csv"},
		},
		{
			name: "text extraction failure propagates",
			im: pipeline.NewImporter(&MockCategorizer{}, pipeline.WithTextExtractor(&MockTextExtractor{
				ExtractTextFunc: func(ctx context.Context, data []byte) (string, error) { return "", extractErr },
			})),
			input: pipeline.Input{Filename: "a.pdf", Data: []byte("%PDF")},
			want:  extractErr,
		},
		{
			name: "sink failure",
			im: pipeline.NewImporter(&MockCategorizer{}, pipeline.WithSink(&MockSink{
				AppendEntriesFunc: func(ctx context.Context, month string, entries []domain.StoreEntry) error {
					return errors.New("insert failed")
				},
			})),
			input: pipeline.Input{Filename: "a.csv", Data: []byte("Date,Description,Amount\n2024-01-15,Shop,10\n")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.im.Import(context.Background(), tt.input)
			if err == nil {
				t.Fatalf("Import() error = nil, want failure")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Import() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestImporter_DegradedCategorizationIsRecorded(t *testing.T) {
	cat := &MockCategorizer{CategorizeFunc: func(ctx context.Context, batch []domain.RawTransaction) ([]domain.CategorizedTransaction, error) {
		out := make([]domain.CategorizedTransaction, len(batch))
		for i, tx := range batch {
			out[i] = domain.CategorizedTransaction{RawTransaction: tx, Category: "random", Confidence: 0.5, Source: domain.TierFallback}
		}
		return out, llm.NotConfigured("Categorize")
	}}
	im := pipeline.NewImporter(cat)

	result, err := im.Import(context.Background(), pipeline.Input{Filename: "a.csv", Data: []byte("Date,Description,Amount\n2024-01-15,Shop,10\n")})

	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "not configured") {
		t.Errorf("Errors = %v", result.Errors)
	}
}
