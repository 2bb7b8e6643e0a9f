package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-importer/internal/api/middleware"
	"github.com/dvloznov/finance-importer/internal/domain"
	"github.com/dvloznov/finance-importer/internal/jobs"
)

const (
	// MaxUploadBytes bounds a statement file submitted for import.
	MaxUploadBytes = 20 << 20
	// MaxCategorizeItems bounds a synchronous categorization request.
	MaxCategorizeItems = 500
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ImportsHandler handles statement import endpoints.
type ImportsHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(publisher jobs.Publisher, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{
		publisher: publisher,
		log:       log,
	}
}

// CreateImport handles POST /api/imports
// The request body is the raw file; ?filename= names it. Alternatively
// ?gcs_uri= names a gs:// object and the body is ignored.
func (h *ImportsHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	job := &jobs.ImportJob{
		Filename:    path.Base(strings.TrimSpace(query.Get("filename"))),
		ContentType: r.Header.Get("Content-Type"),
		SourceURI:   strings.TrimSpace(query.Get("gcs_uri")),
	}
	if job.Filename == "." || job.Filename == "/" {
		job.Filename = ""
	}

	if job.SourceURI != "" {
		if !strings.HasPrefix(job.SourceURI, "gs://") {
			middleware.WriteError(w, http.StatusBadRequest, "gcs_uri must start with gs://")
			return
		}
	} else {
		if job.Filename == "" {
			middleware.WriteError(w, http.StatusBadRequest, "filename is required")
			return
		}
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		if len(data) == 0 {
			middleware.WriteError(w, http.StatusBadRequest, "File is empty")
			return
		}
		job.Data = data
	}

	if err := h.publisher.PublishImport(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("filename", job.Filename).
		Str("gcs_uri", job.SourceURI).
		Int("bytes", len(job.Data)).
		Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// Categorizer is the categorization capability exposed over HTTP.
type Categorizer interface {
	Categorize(ctx context.Context, batch []domain.RawTransaction) ([]domain.CategorizedTransaction, error)
	Categories() []string
}

// CategoriesHandler handles categorization endpoints.
type CategoriesHandler struct {
	categorizer Categorizer
	log         zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(categorizer Categorizer, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{
		categorizer: categorizer,
		log:         log,
	}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.categorizer.Categories()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

type categorizeItem struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Categorize handles POST /api/categorize
func (h *CategoriesHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transactions []categorizeItem `json:"transactions"`
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxUploadBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Transactions) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "transactions are required")
		return
	}
	if len(req.Transactions) > MaxCategorizeItems {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("at most %d transactions per request", MaxCategorizeItems))
		return
	}

	batch := make([]domain.RawTransaction, len(req.Transactions))
	for i, item := range req.Transactions {
		if strings.TrimSpace(item.Description) == "" {
			middleware.WriteError(w, http.StatusBadRequest, "transaction "+strconv.Itoa(i+1)+": description is required")
			return
		}
		amount, err := domain.ValidateAmount(item.Amount.Abs().String())
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "transaction "+strconv.Itoa(i+1)+": "+err.Error())
			return
		}
		batch[i] = domain.RawTransaction{Date: item.Date, Description: item.Description, Amount: amount}
	}

	results, err := h.categorizer.Categorize(r.Context(), batch)
	warnings := []string{}
	if err != nil {
		h.log.Warn().Err(err).Int("items", len(batch)).Msg("Categorization degraded")
		warnings = append(warnings, err.Error())
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": results,
		"count":        len(results),
		"warnings":     warnings,
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Debug().Err(err).Str("job_id", jobID).Msg("Job lookup failed")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// EntryLister reads delivered entries back from the month-keyed store.
type EntryLister interface {
	ListEntries(ctx context.Context, month string) ([]domain.StoreEntry, error)
}

// EntriesHandler handles delivered-entry endpoints.
type EntriesHandler struct {
	lister EntryLister
	log    zerolog.Logger
}

// NewEntriesHandler creates a new entries handler.
func NewEntriesHandler(lister EntryLister, log zerolog.Logger) *EntriesHandler {
	return &EntriesHandler{
		lister: lister,
		log:    log,
	}
}

// ListEntries handles GET /api/entries?month=YYYY-MM
func (h *EntriesHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if !monthPattern.MatchString(month) {
		middleware.WriteError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	entries, err := h.lister.ListEntries(r.Context(), month)
	if err != nil {
		h.log.Error().Err(err).Str("month", month).Msg("Failed to list entries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list entries")
		return
	}
	if entries == nil {
		entries = []domain.StoreEntry{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"month":   month,
		"entries": entries,
		"count":   len(entries),
	})
}
