package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/logger"
	"github.com/dvloznov/finance-importer/internal/normalize"
)

// Format is the detected shape of an input file.
type Format string

const (
	FormatDelimited   Format = "delimited"
	FormatSpreadsheet Format = "spreadsheet"
	FormatDocument    Format = "document"
	FormatText        Format = "text"
)

// Source names the extractor that produced an import's transactions.
const (
	SourceDelimited   = "delimited"
	SourceSpreadsheet = "spreadsheet"
	SourceDelegate    = "delegate"
	SourcePattern     = "pattern"
)

// PipelineStep represents a single step in the import pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID        string
	Input        Input
	Format       Format
	Source       string
	Raw          []domain.RawTransaction
	Transactions []domain.CategorizedTransaction
	Errors       []string
}

func (s *PipelineState) addError(format string, args ...interface{}) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Step 1: FetchStep downloads the input from GCS when only a URI was given.
type FetchStep struct {
	Storage StorageService
}

func (s *FetchStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Input.Data) > 0 || state.Input.SourceURI == "" {
		return nil
	}
	if s.Storage == nil {
		return fmt.Errorf("FetchStep: no storage service for %s", state.Input.SourceURI)
	}
	data, err := s.Storage.FetchFromGCS(ctx, state.Input.SourceURI)
	if err != nil {
		return fmt.Errorf("FetchStep: %w", err)
	}
	state.Input.Data = data
	if state.Input.Filename == "" {
		state.Input.Filename = s.Storage.ExtractFilenameFromGCSURI(state.Input.SourceURI)
	}
	return nil
}

// Step 2: DetectFormatStep decides which extractor handles the input.
type DetectFormatStep struct{}

func (s *DetectFormatStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Input.Data) == 0 {
		return fmt.Errorf("DetectFormatStep: input is empty")
	}
	state.Format = DetectFormat(state.Input.Filename, state.Input.ContentType, state.Input.Data)
	log := logger.FromContext(ctx)
	log.Debug().
		Str("filename", state.Input.Filename).
		Str("format", string(state.Format)).
		Msg("Detected input format")
	return nil
}

var (
	pdfMagic  = []byte("%PDF")
	zipMagic  = []byte("PK\x03\x04")
	oleMagic  = []byte{0xD0, 0xCF, 0x11, 0xE0}
	delimited = map[string]bool{".csv": true, ".tsv": true}
	sheets    = map[string]bool{".xlsx": true, ".xlsm": true, ".xls": true}
)

// DetectFormat classifies an input by extension, content type and leading bytes.
func DetectFormat(filename, contentType string, data []byte) Format {
	ext := strings.ToLower(path.Ext(filename))
	ct := strings.ToLower(contentType)

	switch {
	case delimited[ext] || strings.HasPrefix(ct, "text/csv"):
		return FormatDelimited
	case sheets[ext] || strings.Contains(ct, "spreadsheet") || strings.Contains(ct, "ms-excel"):
		return FormatSpreadsheet
	case ext == ".pdf" || ct == "application/pdf" || bytes.HasPrefix(data, pdfMagic):
		return FormatDocument
	case bytes.HasPrefix(data, zipMagic) || bytes.HasPrefix(data, oleMagic):
		return FormatSpreadsheet
	}

	if !utf8.Valid(data) {
		return FormatDocument
	}
	if looksDelimited(string(data)) {
		return FormatDelimited
	}
	return FormatText
}

// looksDelimited reports whether the first non-blank line is a header that
// resolves every required column.
func looksDelimited(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		header := splitRecord(strings.TrimRight(line, "\r"), sniffDelimiter(line))
		if len(header) < 3 {
			return false
		}
		_, missing := resolveColumns(header)
		return len(missing) == 0
	}
	return false
}

// Step 3: ExtractStep recovers raw transactions with the extractor for the format.
type ExtractStep struct {
	Text     TextExtractor
	Delegate *DelegateExtractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	var result domain.ParseResult

	switch state.Format {
	case FormatDelimited:
		result = ParseDelimitedText(string(state.Input.Data))
		state.Source = SourceDelimited
	case FormatSpreadsheet:
		result = ParseSpreadsheet(state.Input.Data)
		state.Source = SourceSpreadsheet
	case FormatDocument:
		if s.Text == nil {
			return fmt.Errorf("ExtractStep: no text extractor configured for %s", state.Input.Filename)
		}
		text, err := s.Text.ExtractText(ctx, state.Input.Data)
		if err != nil {
			return fmt.Errorf("ExtractStep: extract text: %w", err)
		}
		var source string
		result, source, err = s.fromText(ctx, text)
		if err != nil {
			return fmt.Errorf("ExtractStep: %w", err)
		}
		state.Source = source
	default:
		var (
			source string
			err    error
		)
		result, source, err = s.fromText(ctx, string(state.Input.Data))
		if err != nil {
			return fmt.Errorf("ExtractStep: %w", err)
		}
		state.Source = source
	}

	state.Raw = result.Transactions
	state.Errors = append(state.Errors, result.Errors...)
	return nil
}

// fromText prefers the delegate and falls back to pattern location when the
// delegate fails or finds nothing. The delegate error is returned only when
// there is no text to fall back on.
func (s *ExtractStep) fromText(ctx context.Context, text string) (domain.ParseResult, string, error) {
	log := logger.FromContext(ctx)
	var notes []string

	if s.Delegate.Configured() {
		res, err := s.Delegate.Extract(ctx, text)
		switch {
		case err != nil && strings.TrimSpace(text) == "":
			return res, SourceDelegate, err
		case err != nil:
			log.Warn().Err(err).Msg("Delegate extraction failed, falling back to pattern matching")
			notes = append(notes, fmt.Sprintf("delegate extraction failed, used pattern matching: %v", err))
		case len(res.Transactions) > 0:
			return res, SourceDelegate, nil
		default:
			log.Info().Msg("Delegate found no transactions, falling back to pattern matching")
			notes = append(notes, res.Errors...)
		}
	}

	result := domain.ParseResult{Transactions: LocateTransactions(text), Errors: notes}
	if len(result.Transactions) == 0 {
		result.AddError("no transactions found in document text")
	}
	return result, SourcePattern, nil
}

// Step 4: NormalizeStep canonicalizes dates and amounts and removes duplicates.
type NormalizeStep struct{}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	before := len(state.Raw)
	state.Raw = normalize.Normalize(state.Raw)
	log := logger.FromContext(ctx)
	log.Debug().
		Int("before", before).
		Int("after", len(state.Raw)).
		Msg("Normalized transactions")
	return nil
}

// Step 5: CategorizeStep assigns a category to every transaction.
type CategorizeStep struct {
	Categorizer Categorizer
}

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Raw) == 0 {
		state.Transactions = []domain.CategorizedTransaction{}
		return nil
	}
	results, err := s.Categorizer.Categorize(ctx, state.Raw)
	if len(results) != len(state.Raw) {
		if err == nil {
			err = fmt.Errorf("got %d results for %d transactions", len(results), len(state.Raw))
		}
		return fmt.Errorf("CategorizeStep: %w", err)
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Categorization degraded, fallback categories used")
		state.addError("categorization degraded: %v", err)
	}
	state.Transactions = results
	return nil
}

// Step 6: DeliverStep hands categorized entries to the sink, one call per month.
type DeliverStep struct {
	Sink TransactionSink
}

func (s *DeliverStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Sink == nil || len(state.Transactions) == 0 {
		return nil
	}

	groups := domain.GroupByMonth(state.Transactions)
	months := make([]string, 0, len(groups))
	for m := range groups {
		months = append(months, m)
	}
	sort.Strings(months)

	for _, month := range months {
		if err := s.Sink.AppendEntries(ctx, month, groups[month]); err != nil {
			return fmt.Errorf("DeliverStep: month %s: %w", month, err)
		}
	}
	log := logger.FromContext(ctx)
	log.Info().
		Int("months", len(months)).
		Int("entries", len(state.Transactions)).
		Msg("Delivered entries")
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
