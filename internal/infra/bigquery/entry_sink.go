// Package bigquery delivers categorized entries to a month-keyed BigQuery table.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/logger"
)

// EntrySink appends store entries to a BigQuery table. It holds a shared
// client for the lifetime of the process.
type EntrySink struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
	now       func() time.Time
}

// NewEntrySink creates a sink writing to projectID.datasetID.tableID.
func NewEntrySink(ctx context.Context, projectID, datasetID, tableID string) (*EntrySink, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewEntrySink: project ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewEntrySink: creating client: %w", err)
	}
	return &EntrySink{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
		now:       time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (s *EntrySink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureTable creates the expenses table if it doesn't exist.
func (s *EntrySink) EnsureTable(ctx context.Context) error {
	q := s.client.Query(fmt.Sprintf(expensesSchema, s.qualifiedName()))
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("EnsureTable: running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("EnsureTable: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("EnsureTable: job error: %w", err)
	}

	log := logger.FromContext(ctx)

	log.Info().Str("table", s.qualifiedName()).Msg("Expenses table ready")
	return nil
}

// AppendEntries inserts the entries of one month.
func (s *EntrySink) AppendEntries(ctx context.Context, month string, entries []domain.StoreEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows, err := toExpenseRows(month, entries, s.now().UTC(), uuid.NewString)
	if err != nil {
		return fmt.Errorf("AppendEntries: %w", err)
	}

	inserter := s.client.DatasetInProject(s.projectID, s.datasetID).Table(s.tableID).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("AppendEntries: inserting rows: %w", err)
	}

	log := logger.FromContext(ctx)

	log.Debug().
		Str("month", month).
		Int("rows", len(rows)).
		Msg("Appended expense entries")
	return nil
}

// ListEntries returns the entries stored under month, oldest first.
func (s *EntrySink) ListEntries(ctx context.Context, month string) ([]domain.StoreEntry, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT entry_id, month, entry_date, amount, category, note, created_ts
		FROM %s
		WHERE month = @month
		ORDER BY entry_date, created_ts
	`, s.qualifiedName()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "month", Value: month},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListEntries: query read: %w", err)
	}

	var entries []domain.StoreEntry
	for {
		var r ExpenseRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListEntries: iter next: %w", err)
		}
		entry, err := r.toStoreEntry()
		if err != nil {
			return nil, fmt.Errorf("ListEntries: row %s: %w", r.EntryID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *EntrySink) qualifiedName() string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, s.tableID)
}
