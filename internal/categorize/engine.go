// Package categorize assigns spending categories to recovered transactions
// through rule, cache and delegate tiers, in that order.
package categorize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-importer/internal/cache"
	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/llm"
	"github.com/dvloznov/finance-importer/internal/logger"
)

const (
	// FallbackCategory is assigned when no tier can decide.
	FallbackCategory = "random"

	RuleConfidence     = 0.95
	FallbackConfidence = 0.5

	// DefaultBatchSize is the number of items per delegate request.
	DefaultBatchSize = 10
	// DefaultTimeout bounds a single delegate request.
	DefaultTimeout = 90 * time.Second
	// DefaultTemperature keeps delegate answers close to deterministic.
	DefaultTemperature = 0.1
)

// Engine categorizes batches of transactions.
type Engine struct {
	rules       *RuleSet
	cache       *cache.CategorizationCache
	delegate    llm.Generator
	model       string
	temperature float32
	batchSize   int
	timeout     time.Duration
	vocabulary  []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithModel sets the delegate model identifier.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithTemperature sets the delegate sampling temperature.
func WithTemperature(t float32) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithBatchSize sets the delegate sub-batch size.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTimeout sets the per-request delegate timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine builds an engine. A nil rule set uses DefaultRules, a nil cache
// uses an in-memory store and a nil delegate disables the third tier.
func NewEngine(rules *RuleSet, c *cache.CategorizationCache, delegate llm.Generator, opts ...Option) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	if c == nil {
		c = cache.New(cache.NewMemoryStore())
	}
	e := &Engine{
		rules:       rules,
		cache:       c,
		delegate:    delegate,
		temperature: DefaultTemperature,
		batchSize:   DefaultBatchSize,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.vocabulary = rules.Categories()
	if !contains(e.vocabulary, FallbackCategory) {
		e.vocabulary = append(e.vocabulary, FallbackCategory)
	}
	return e
}

// Categories returns the valid output vocabulary.
func (e *Engine) Categories() []string {
	return append([]string(nil), e.vocabulary...)
}

// Categorize assigns a category to every item and returns the results in
// input order. The result slice is always complete: items the delegate tier
// could not serve carry FallbackCategory. The error, when non-nil, describes
// those degraded items (a *llm.DelegateError, or several joined).
func (e *Engine) Categorize(ctx context.Context, batch []domain.RawTransaction) ([]domain.CategorizedTransaction, error) {
	log := logger.FromContext(ctx)

	results := make([]domain.CategorizedTransaction, len(batch))
	var pending []int

	for i, tx := range batch {
		results[i].RawTransaction = tx

		if category, ok := e.rules.Match(tx.Description); ok {
			results[i].Category = category
			results[i].Confidence = RuleConfidence
			results[i].Source = domain.TierRule
			e.remember(ctx, tx.Description, category, RuleConfidence)
			continue
		}

		if entry, ok := e.cache.Lookup(ctx, tx.Description); ok {
			results[i].Category = entry.Category
			results[i].Confidence = entry.Confidence
			results[i].Source = domain.TierCache
			continue
		}

		pending = append(pending, i)
	}

	log.Debug().
		Int("items", len(batch)).
		Int("pending_delegate", len(pending)).
		Msg("Rule and cache tiers done")

	if len(pending) == 0 {
		return results, nil
	}

	if e.delegate == nil {
		e.fallback(results, pending)
		log.Warn().Int("items", len(pending)).Msg("Categorization delegate not configured, using fallback category")
		return results, llm.NotConfigured("Categorize")
	}

	var errs []error
	for start := 0; start < len(pending); start += e.batchSize {
		end := min(start+e.batchSize, len(pending))
		idx := pending[start:end]

		assigned, err := e.categorizeSubBatch(ctx, batch, idx)
		if err != nil {
			derr := llm.Classify("Categorize", err)
			log.Warn().Err(derr).Int("sub_batch", start/e.batchSize+1).Msg("Categorization sub-batch failed")
			errs = append(errs, fmt.Errorf("sub-batch %d: %w", start/e.batchSize+1, derr))

			if start == 0 && (errors.Is(derr, llm.ErrTimeout) || errors.Is(derr, llm.ErrRateLimited)) {
				e.fallback(results, pending)
				break
			}
			e.fallback(results, idx)
			continue
		}

		for k, i := range idx {
			a := assigned[k]
			results[i].Category = a.Category
			results[i].Confidence = a.Confidence
			results[i].Source = a.Tier
			e.remember(ctx, batch[i].Description, a.Category, a.Confidence)
		}
	}

	return results, errors.Join(errs...)
}

func (e *Engine) categorizeSubBatch(ctx context.Context, batch []domain.RawTransaction, idx []int) ([]assignment, error) {
	items := make([]domain.RawTransaction, len(idx))
	for k, i := range idx {
		items[k] = batch[i]
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.delegate.Generate(callCtx, llm.Request{
		Prompt:      buildCategorizationPrompt(e.vocabulary, items),
		Model:       e.model,
		Temperature: e.temperature,
	})
	if err != nil {
		return nil, err
	}
	return parseAssignments(raw, len(items), e.vocabulary), nil
}

func (e *Engine) fallback(results []domain.CategorizedTransaction, idx []int) {
	for _, i := range idx {
		if results[i].Category != "" {
			continue
		}
		results[i].Category = FallbackCategory
		results[i].Confidence = FallbackConfidence
		results[i].Source = domain.TierFallback
	}
}

func (e *Engine) remember(ctx context.Context, description, category string, confidence float64) {
	if err := e.cache.Put(ctx, description, category, confidence); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("category", category).Msg("Failed to write categorization cache")
	}
}

// contains reports whether list holds s, ignoring case.
func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
