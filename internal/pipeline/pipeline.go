// Package pipeline recovers bank transactions from statement exports and
// documents, normalizes them, categorizes them and hands them to a store.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/logger"
)

// Input is one file submitted for import. Data may be empty when SourceURI
// names a gs:// object to fetch.
type Input struct {
	Filename    string
	ContentType string
	SourceURI   string
	Data        []byte
}

// ImportResult is the outcome of a completed import. Errors holds non-fatal
// diagnostics such as skipped rows, failed chunks or degraded categorization.
type ImportResult struct {
	RunID        string                          `json:"run_id"`
	Format       Format                          `json:"format"`
	Source       string                          `json:"source"`
	Transactions []domain.CategorizedTransaction `json:"transactions"`
	Errors       []string                        `json:"errors"`
}

// Importer runs the import pipeline.
type Importer struct {
	categorizer Categorizer
	text        TextExtractor
	delegate    *DelegateExtractor
	storage     StorageService
	sink        TransactionSink
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithTextExtractor sets the document-to-text converter.
func WithTextExtractor(t TextExtractor) ImporterOption {
	return func(im *Importer) { im.text = t }
}

// WithDelegate sets the external extraction delegate.
func WithDelegate(d *DelegateExtractor) ImporterOption {
	return func(im *Importer) { im.delegate = d }
}

// WithStorage enables gs:// inputs.
func WithStorage(s StorageService) ImporterOption {
	return func(im *Importer) { im.storage = s }
}

// WithSink sets the store that receives categorized entries.
func WithSink(s TransactionSink) ImporterOption {
	return func(im *Importer) { im.sink = s }
}

// NewImporter creates an Importer.
func NewImporter(categorizer Categorizer, opts ...ImporterOption) *Importer {
	im := &Importer{categorizer: categorizer}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import runs fetch, detection, extraction, normalization, categorization and
// delivery for one input.
func (im *Importer) Import(ctx context.Context, in Input) (*ImportResult, error) {
	state := &PipelineState{
		RunID: uuid.New().String(),
		Input: in,
	}

	log := logger.FromContext(ctx).With().
		Str("run_id", state.RunID).
		Str("filename", in.Filename).
		Logger()
	ctx = logger.WithContext(ctx, log)

	start := time.Now()
	log.Info().Str("source_uri", in.SourceURI).Int("bytes", len(in.Data)).Msg("Starting import")

	p := NewPipeline(
		&FetchStep{Storage: im.storage},
		&DetectFormatStep{},
		&ExtractStep{Text: im.text, Delegate: im.delegate},
		&NormalizeStep{},
		&CategorizeStep{Categorizer: im.categorizer},
		&DeliverStep{Sink: im.sink},
	)
	if err := p.Execute(ctx, state); err != nil {
		log.Error().Err(err).Msg("Import failed")
		return nil, err
	}

	log.Info().
		Str("format", string(state.Format)).
		Str("source", state.Source).
		Int("transactions", len(state.Transactions)).
		Int("errors", len(state.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Import complete")

	errs := state.Errors
	if errs == nil {
		errs = []string{}
	}
	return &ImportResult{
		RunID:        state.RunID,
		Format:       state.Format,
		Source:       state.Source,
		Transactions: state.Transactions,
		Errors:       errs,
	}, nil
}
