package jobs

import (
	"context"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries is applied to jobs published without an explicit limit.
const DefaultMaxRetries = 2

// ImportJob is a statement file queued for import.
type ImportJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Filename is the submitted file name, used for format detection.
	Filename string `json:"filename"`

	// ContentType is the submitted MIME type, if any.
	ContentType string `json:"content_type,omitempty"`

	// SourceURI is a gs:// URI to fetch when Data is empty.
	SourceURI string `json:"source_uri,omitempty"`

	// Data is the file content. It is released once the job finishes.
	Data []byte `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// RunID is the import run identifier assigned by the pipeline.
	RunID string `json:"run_id,omitempty"`

	// Source names the extractor that produced the transactions.
	Source string `json:"source,omitempty"`

	// TransactionCount is the number of categorized transactions.
	TransactionCount int `json:"transaction_count"`

	// Warnings carries non-fatal import diagnostics.
	Warnings []string `json:"warnings,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishImport publishes a statement import job.
	PublishImport(ctx context.Context, job *ImportJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It may record results on the job; a returned
// error marks the attempt failed and makes the job eligible for retry.
type JobHandler func(ctx context.Context, job *ImportJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ImportJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ImportJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ImportJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
