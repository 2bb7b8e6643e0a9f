package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/llm"
	"github.com/dvloznov/finance-importer/internal/logger"
	"github.com/dvloznov/finance-importer/internal/normalize"
)

// DelegateExtractor recovers transactions from statement text through an
// external generative service.
type DelegateExtractor struct {
	gen         llm.Generator
	model       string
	temperature float32
	chunkSize   int
	timeout     time.Duration
}

// DelegateOption configures a DelegateExtractor.
type DelegateOption func(*DelegateExtractor)

func WithExtractionModel(model string) DelegateOption {
	return func(d *DelegateExtractor) {
		if model != "" {
			d.model = model
		}
	}
}

func WithExtractionTemperature(t float32) DelegateOption {
	return func(d *DelegateExtractor) { d.temperature = t }
}

func WithChunkSize(n int) DelegateOption {
	return func(d *DelegateExtractor) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

func WithExtractionTimeout(timeout time.Duration) DelegateOption {
	return func(d *DelegateExtractor) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDelegateExtractor returns an extractor over gen. A nil gen yields an
// extractor whose Extract always fails with llm.ErrNotConfigured.
func NewDelegateExtractor(gen llm.Generator, opts ...DelegateOption) *DelegateExtractor {
	d := &DelegateExtractor{
		gen:         gen,
		model:       DefaultModelName,
		temperature: DefaultTemperature,
		chunkSize:   DefaultChunkSize,
		timeout:     DefaultDelegateTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Configured reports whether a generator is available.
func (d *DelegateExtractor) Configured() bool {
	return d != nil && d.gen != nil
}

// Extract sends the text chunk by chunk and merges the results. A failure on
// the first chunk is returned as a *llm.DelegateError; failures on later
// chunks are recorded in the result's Errors and the chunk is skipped.
func (d *DelegateExtractor) Extract(ctx context.Context, text string) (domain.ParseResult, error) {
	result := domain.ParseResult{Transactions: []domain.RawTransaction{}, Errors: []string{}}
	if !d.Configured() {
		return result, llm.NotConfigured("Extract")
	}

	log := logger.FromContext(ctx)
	chunks := SplitChunks(text, d.chunkSize)

	for i, chunk := range chunks {
		txs, err := d.extractChunk(ctx, chunk, i+1, len(chunks))
		if err != nil {
			derr := llm.Classify("Extract", err)
			if i == 0 {
				return result, derr
			}
			log.Warn().Err(derr).Int("chunk", i+1).Int("chunks", len(chunks)).Msg("Extraction chunk failed, skipping")
			result.AddError("chunk %d: %s", i+1, derr.Error())
			continue
		}
		result.Transactions = append(result.Transactions, txs...)
	}

	result.Transactions = normalize.Dedupe(result.Transactions)
	log.Info().
		Int("chunks", len(chunks)).
		Int("transactions", len(result.Transactions)).
		Msg("Delegate extraction complete")
	return result, nil
}

func (d *DelegateExtractor) extractChunk(ctx context.Context, chunk string, part, total int) ([]domain.RawTransaction, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := d.gen.Generate(callCtx, llm.Request{
		Prompt:      buildExtractionPrompt(chunk, part, total),
		Model:       d.model,
		Temperature: d.temperature,
	})
	if err != nil {
		return nil, err
	}

	items, err := llm.DecodeItems(raw, "transactions")
	if err != nil {
		return nil, llm.Malformed("Extract", err)
	}

	log := logger.FromContext(ctx)
	txs := make([]domain.RawTransaction, 0, len(items))
	for _, item := range items {
		tx, err := ExternalRecord(item).ToRawTransaction()
		if err != nil {
			log.Debug().Err(err).Int("chunk", part).Msg("Dropping delegate record")
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// SplitChunks splits text on line boundaries into chunks shorter than limit
// characters. A single line longer than limit becomes its own chunk.
func SplitChunks(text string, limit int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var (
		chunks []string
		b      strings.Builder
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		if b.Len() > 0 && b.Len()+len(line) >= limit {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		b.WriteString(line)
	}
	if strings.TrimSpace(b.String()) != "" {
		chunks = append(chunks, b.String())
	}
	return chunks
}
