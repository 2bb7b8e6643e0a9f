package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-importer/internal/jobs"
	"github.com/dvloznov/finance-importer/internal/logger"
	"github.com/google/uuid"
)

// DefaultWorkers is the number of concurrent import workers.
const DefaultWorkers = 2

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	jobChan   chan *jobs.ImportJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	backoff   time.Duration
	closed    bool
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishImport blocks.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		jobChan:   make(chan *jobs.ImportJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		backoff:   time.Second,
	}
}

// PublishImport enqueues an import job for asynchronous processing.
func (q *Queue) PublishImport(ctx context.Context, job *jobs.ImportJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start starts the workers that process jobs with the provided handler.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one attempt of a job and records its outcome.
func (q *Queue) processJob(ctx context.Context, job *jobs.ImportJob, handler jobs.JobHandler) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"job_id":   job.JobID,
		"filename": job.Filename,
		"attempt":  job.RetryCount + 1,
	})

	started := time.Now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	q.save(ctx, job)

	err := handler(logger.WithContext(ctx, log), job)

	finished := time.Now()
	job.CompletedAt = &finished

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		job.Data = nil
		log.Info().
			Int("transactions", job.TransactionCount).
			Int("warnings", len(job.Warnings)).
			Dur("took", finished.Sub(started)).
			Msg("Import job completed")
	case job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		delay := time.Duration(job.RetryCount) * q.backoff
		log.Warn().Err(err).Dur("retry_in", delay).Msg("Import job failed, retrying")
		q.save(ctx, job)
		q.retryAfter(ctx, job, delay)
		return
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		job.Data = nil
		log.Error().Err(err).Msg("Import job failed")
	}

	q.save(ctx, job)
}

// retryAfter re-publishes a copy of job once delay has passed. The caller
// must not touch job afterwards. The file bytes are kept until the job
// reaches a final state.
func (q *Queue) retryAfter(ctx context.Context, job *jobs.ImportJob, delay time.Duration) {
	next := *job
	next.Status = jobs.JobStatusPending
	next.StartedAt = nil
	next.CompletedAt = nil
	time.AfterFunc(delay, func() {
		if err := q.PublishImport(ctx, &next); err != nil {
			log := logger.FromContext(ctx)
			log.Error().Err(err).Str("job_id", next.JobID).Msg("Failed to re-enqueue import job")
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.ImportJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
