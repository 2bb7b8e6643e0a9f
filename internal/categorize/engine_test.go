package categorize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/dvloznov/finance-importer/internal/cache"
	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/llm"
	"github.com/shopspring/decimal"
)

// MockGenerator is a mock implementation of llm.Generator.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req llm.Request) (string, error)
	calls        []llm.Request
}

func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	m.calls = append(m.calls, req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", errors.New("GenerateFunc not set")
}

var promptItem = regexp.MustCompile(`(?m)^(\d+)\. "`)

// answerAll replies with category for every item listed in the prompt.
func answerAll(category string) func(ctx context.Context, req llm.Request) (string, error) {
	return func(ctx context.Context, req llm.Request) (string, error) {
		var parts []string
		for _, m := range promptItem.FindAllStringSubmatch(req.Prompt, -1) {
			parts = append(parts, fmt.Sprintf(`{"index":%s,"category":%q,"confidence":0.8}`, m[1], category))
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	}
}

func raw(desc string) domain.RawTransaction {
	return domain.RawTransaction{Date: "2024-01-15", Description: desc, Amount: decimal.NewFromInt(100)}
}

func TestEngine_RuleTierIsDeterministic(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore())
	_ = c.Put(ctx, "Checkers Sandton", "dining", 0.7)

	gen := &MockGenerator{}
	engine := NewEngine(nil, c, gen)

	for i := 0; i < 2; i++ {
		got, err := engine.Categorize(ctx, []domain.RawTransaction{raw("Checkers Sandton"), raw("CHECKERS SANDTON")})
		if err != nil {
			t.Fatalf("Categorize() error = %v", err)
		}
		for _, r := range got {
			if r.Category != "groceries" || r.Confidence != RuleConfidence || r.Source != domain.TierRule {
				t.Errorf("got %+v, want groceries @ %v from rule tier", r, RuleConfidence)
			}
		}
	}
	if len(gen.calls) != 0 {
		t.Errorf("delegate called %d times, want 0", len(gen.calls))
	}

	// The rule result overwrote the stale cache entry.
	if e, ok := c.Lookup(ctx, "checkers sandton"); !ok || e.Category != "groceries" {
		t.Errorf("cache entry = %+v (hit %v), want groceries", e, ok)
	}
}

func TestEngine_UnconfiguredDelegateFallsBack(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore())
	_ = c.Put(ctx, "Joe's Corner Shop", "shopping", 0.8)

	engine := NewEngine(nil, c, nil)
	batch := []domain.RawTransaction{raw("Checkers Sandton"), raw("Joe's Corner Shop"), raw("Zxq Holdings")}

	got, err := engine.Categorize(ctx, batch)
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Errorf("Categorize() error = %v, want ErrNotConfigured", err)
	}
	if len(got) != 3 {
		t.Fatalf("Categorize() returned %d results, want 3", len(got))
	}

	want := []struct {
		category   string
		confidence float64
		source     domain.Tier
	}{
		{"groceries", RuleConfidence, domain.TierRule},
		{"shopping", cache.HitConfidence, domain.TierCache},
		{FallbackCategory, FallbackConfidence, domain.TierFallback},
	}
	for i, w := range want {
		if got[i].Description != batch[i].Description {
			t.Errorf("item %d out of order: %q", i, got[i].Description)
		}
		if got[i].Category != w.category || got[i].Confidence != w.confidence || got[i].Source != w.source {
			t.Errorf("item %d = %+v, want %s @ %v (%s)", i, got[i], w.category, w.confidence, w.source)
		}
	}

	// Fallbacks caused by missing configuration are not cached.
	if _, ok := c.Lookup(ctx, "Zxq Holdings"); ok {
		t.Error("unconfigured fallback should not be cached")
	}
}

func TestEngine_NoDelegateCallWhenNothingPending(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		t.Fatal("delegate must not be called")
		return "", nil
	}}
	engine := NewEngine(nil, nil, gen)

	got, err := engine.Categorize(context.Background(), []domain.RawTransaction{raw("Engen Fourways"), raw("Netflix")})
	if err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	if got[0].Category != "fuel" || got[1].Category != "subscriptions" {
		t.Errorf("Categorize() = %+v", got)
	}

	empty, err := engine.Categorize(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Categorize(nil) = %v, %v", empty, err)
	}
}

func TestEngine_DelegateSubBatchesPreserveOrderAndFillCache(t *testing.T) {
	ctx := context.Background()
	gen := &MockGenerator{GenerateFunc: answerAll("shopping")}
	engine := NewEngine(nil, nil, gen, WithModel("test-model"))

	var batch []domain.RawTransaction
	for i := 0; i < 23; i++ {
		batch = append(batch, raw(fmt.Sprintf("Merchant %02d", i)))
	}
	batch[5] = raw("Checkers Sandton")

	got, err := engine.Categorize(ctx, batch)
	if err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}

	if len(gen.calls) != 3 {
		t.Fatalf("delegate called %d times, want 3 (22 pending items in sub-batches of 10)", len(gen.calls))
	}
	if gen.calls[0].Model != "test-model" {
		t.Errorf("Model = %q, want test-model", gen.calls[0].Model)
	}
	if n := len(promptItem.FindAllString(gen.calls[2].Prompt, -1)); n != 2 {
		t.Errorf("last sub-batch has %d items, want 2", n)
	}

	for i, r := range got {
		if r.Description != batch[i].Description {
			t.Fatalf("item %d = %q, want %q", i, r.Description, batch[i].Description)
		}
		want := "shopping"
		if i == 5 {
			want = "groceries"
		}
		if r.Category != want {
			t.Errorf("item %d category = %q, want %q", i, r.Category, want)
		}
	}

	// Second run is served from the cache.
	again, err := engine.Categorize(ctx, batch)
	if err != nil {
		t.Fatalf("second Categorize() error = %v", err)
	}
	if len(gen.calls) != 3 {
		t.Errorf("delegate called again: %d calls", len(gen.calls))
	}
	if again[0].Source != domain.TierCache || again[0].Confidence != cache.HitConfidence {
		t.Errorf("second run item 0 = %+v, want cache hit", again[0])
	}
}

func TestEngine_FirstSubBatchTimeoutStopsDelegate(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return "", context.DeadlineExceeded
	}}
	engine := NewEngine(nil, nil, gen, WithBatchSize(2))

	batch := []domain.RawTransaction{raw("Alpha One"), raw("Bravo Two"), raw("Charlie Three")}
	got, err := engine.Categorize(context.Background(), batch)
	if !errors.Is(err, llm.ErrTimeout) {
		t.Errorf("Categorize() error = %v, want ErrTimeout", err)
	}
	if len(gen.calls) != 1 {
		t.Errorf("delegate called %d times, want 1", len(gen.calls))
	}
	for _, r := range got {
		if r.Category != FallbackCategory || r.Confidence > FallbackConfidence {
			t.Errorf("got %+v, want fallback", r)
		}
	}
}

func TestEngine_LaterSubBatchFailureKeepsEarlierResults(t *testing.T) {
	answer := answerAll("dining")
	gen := &MockGenerator{}
	gen.GenerateFunc = func(ctx context.Context, req llm.Request) (string, error) {
		if len(gen.calls) == 2 {
			return "", &llm.StatusError{Code: 429, Message: "slow down"}
		}
		return answer(ctx, req)
	}
	engine := NewEngine(nil, nil, gen, WithBatchSize(2))

	batch := []domain.RawTransaction{raw("Alpha One"), raw("Bravo Two"), raw("Charlie Three")}
	got, err := engine.Categorize(context.Background(), batch)
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Errorf("Categorize() error = %v, want ErrRateLimited", err)
	}

	wantCats := []string{"dining", "dining", FallbackCategory}
	for i, w := range wantCats {
		if got[i].Category != w {
			t.Errorf("item %d category = %q, want %q", i, got[i].Category, w)
		}
	}
}

func TestEngine_InvalidDelegateCategoryIsCachedAsFallback(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore())
	gen := &MockGenerator{GenerateFunc: answerAll("crypto")}
	engine := NewEngine(nil, c, gen)

	got, err := engine.Categorize(ctx, []domain.RawTransaction{raw("Zxq Holdings")})
	if err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	if got[0].Category != FallbackCategory || got[0].Confidence != FallbackConfidence {
		t.Errorf("got %+v, want fallback", got[0])
	}
	if e, ok := c.Lookup(ctx, "Zxq Holdings"); !ok || e.Category != FallbackCategory {
		t.Errorf("cache = %+v (hit %v), want fallback category cached", e, ok)
	}
}

func TestEngine_MixedCaseRuleTable(t *testing.T) {
	rules, err := ParseRules([]byte("- category: Groceries\n  patterns: [checkers]\n- category: Dining\n  patterns: [bistro]\n"))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}
	gen := &MockGenerator{GenerateFunc: answerAll("Dining")}
	engine := NewEngine(rules, cache.New(cache.NewMemoryStore()), gen)

	got, err := engine.Categorize(context.Background(), []domain.RawTransaction{raw("Checkers Sandton"), raw("Le Petit Paris")})
	if err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	if got[0].Category != "Groceries" || got[0].Source != domain.TierRule {
		t.Errorf("rule result = %+v, want Groceries from rule tier", got[0])
	}
	if got[1].Category != "Dining" || got[1].Confidence != 0.8 || got[1].Source != domain.TierDelegate {
		t.Errorf("delegate result = %+v, want Dining @ 0.8 from delegate tier", got[1])
	}
}

func TestEngine_PromptListsVocabulary(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: answerAll("dining")}
	engine := NewEngine(nil, nil, gen)

	if _, err := engine.Categorize(context.Background(), []domain.RawTransaction{raw("Zxq Holdings")}); err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	for _, c := range engine.Categories() {
		if !strings.Contains(gen.calls[0].Prompt, "  - "+c+"\n") {
			t.Errorf("prompt does not list category %q", c)
		}
	}
}
