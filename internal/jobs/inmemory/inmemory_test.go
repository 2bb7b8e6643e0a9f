package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-importer/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s", id, want)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	defer q.Close()

	err := q.Start(ctx, func(ctx context.Context, job *jobs.ImportJob) error {
		job.RunID = "run-1"
		job.TransactionCount = len(job.Data)
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ImportJob{Filename: "jan.csv", Data: []byte("abc")}
	if err := q.PublishImport(ctx, job); err != nil {
		t.Fatalf("PublishImport() error = %v", err)
	}
	if job.JobID == "" || job.MaxRetries != jobs.DefaultMaxRetries {
		t.Errorf("defaults not applied: %+v", job)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.RunID != "run-1" || got.TransactionCount != 3 {
		t.Errorf("job = %+v", got)
	}
	if got.Data != nil {
		t.Error("stored job should not retain file data")
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	q.backoff = time.Millisecond
	defer q.Close()

	attempts := make(chan struct{}, 10)
	_ = q.Start(ctx, func(ctx context.Context, job *jobs.ImportJob) error {
		attempts <- struct{}{}
		return errors.New("boom")
	})

	job := &jobs.ImportJob{Filename: "bad.pdf", MaxRetries: 1}
	if err := q.PublishImport(ctx, job); err != nil {
		t.Fatalf("PublishImport() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got.Error != "boom" || got.RetryCount != 1 {
		t.Errorf("job = %+v", got)
	}
	if n := len(attempts); n != 2 {
		t.Errorf("handler ran %d times, want 2", n)
	}
}

func TestQueue_ImmediateRetryIsNotOverwritten(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 2, store)
	q.backoff = 0
	defer q.Close()

	attempts := make(chan *jobs.ImportJob, 10)
	_ = q.Start(ctx, func(ctx context.Context, job *jobs.ImportJob) error {
		attempts <- job
		if job.RetryCount == 0 {
			return errors.New("transient")
		}
		job.TransactionCount = 7
		return nil
	})

	job := &jobs.ImportJob{Filename: "jan.csv", Data: []byte("abc"), MaxRetries: 2}
	if err := q.PublishImport(ctx, job); err != nil {
		t.Fatalf("PublishImport() error = %v", err)
	}

	waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	time.Sleep(50 * time.Millisecond)

	got, err := store.GetJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.JobStatusCompleted || got.RetryCount != 1 || got.TransactionCount != 7 {
		t.Errorf("stored job = %+v, want completed after one retry", got)
	}

	first, second := <-attempts, <-attempts
	if first == second {
		t.Error("retry should run on its own copy of the job")
	}
	if first.Status != jobs.JobStatusRetrying {
		t.Errorf("first attempt status = %s, want it left at %s", first.Status, jobs.JobStatusRetrying)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	_ = q.Close()

	if err := q.PublishImport(context.Background(), &jobs.ImportJob{}); err == nil {
		t.Error("PublishImport() on closed queue should fail")
	}
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, st := range []jobs.JobStatus{jobs.JobStatusCompleted, jobs.JobStatusFailed, jobs.JobStatusCompleted} {
		_ = s.SaveJob(ctx, &jobs.ImportJob{
			JobID:     string(rune('a' + i)),
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	all, _ := s.ListJobs(ctx, jobs.JobFilter{})
	if len(all) != 3 || all[0].JobID != "c" {
		t.Errorf("ListJobs() = %d jobs, first %q; want 3, newest first", len(all), all[0].JobID)
	}

	completed, _ := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted, Limit: 1})
	if len(completed) != 1 || completed[0].JobID != "c" {
		t.Errorf("filtered ListJobs() = %+v", completed)
	}

	if err := s.SaveJob(ctx, &jobs.ImportJob{}); err == nil {
		t.Error("SaveJob() without ID should fail")
	}
	if _, err := s.GetJob(ctx, "missing"); err == nil {
		t.Error("GetJob() for unknown ID should fail")
	}
}
