package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-importer/internal/jobs"
	"github.com/dvloznov/finance-importer/internal/logger"
	"github.com/dvloznov/finance-importer/internal/pipeline"
)

// Importer is the part of pipeline.Importer the job handler needs.
type Importer interface {
	Import(ctx context.Context, in pipeline.Input) (*pipeline.ImportResult, error)
}

// ImportJobHandler runs queued import jobs through the importer and records
// the outcome on the job.
func ImportJobHandler(importer Importer) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.ImportJob) error {
		log := logger.FromContext(ctx)
		log.Info().Str("source_uri", job.SourceURI).Int("bytes", len(job.Data)).Msg("Processing import job")

		res, err := importer.Import(ctx, pipeline.Input{
			Filename:    job.Filename,
			ContentType: job.ContentType,
			SourceURI:   job.SourceURI,
			Data:        job.Data,
		})
		if err != nil {
			return fmt.Errorf("import job %s: %w", job.JobID, err)
		}

		job.RunID = res.RunID
		job.Source = res.Source
		job.TransactionCount = len(res.Transactions)
		job.Warnings = res.Errors
		return nil
	}
}
