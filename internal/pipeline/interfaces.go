package pipeline

import (
	"context"

	"github.com/dvloznov/finance-importer/internal/domain"
)

// StorageService fetches statement files stored in Google Cloud Storage.
type StorageService interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
	ExtractFilenameFromGCSURI(uri string) string
}

// TextExtractor turns a binary document into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// Categorizer assigns a category to every transaction in a batch. It returns
// a complete result slice even when the error is non-nil.
type Categorizer interface {
	Categorize(ctx context.Context, batch []domain.RawTransaction) ([]domain.CategorizedTransaction, error)
}

// TransactionSink is the month-keyed store that receives categorized entries.
type TransactionSink interface {
	AppendEntries(ctx context.Context, month string, entries []domain.StoreEntry) error
}
