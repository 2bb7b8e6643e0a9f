package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dvloznov/finance-importer/internal/logger"
)

// DefaultPruneSchedule runs cache pruning at 03:00 every day.
const DefaultPruneSchedule = "0 3 * * *"

// Pruner removes expired cache entries.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// StartCachePruner schedules p.Prune on a standard five-field cron schedule
// in UTC. The caller stops the returned scheduler on shutdown.
func StartCachePruner(ctx context.Context, p Pruner, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, func() { runPrune(ctx, p) }); err != nil {
		return nil, fmt.Errorf("StartCachePruner: schedule %q: %w", schedule, err)
	}
	c.Start()

	log := logger.FromContext(ctx)

	log.Info().Str("schedule", schedule).Msg("Cache prune scheduler started")
	return c, nil
}

func runPrune(ctx context.Context, p Pruner) {
	log := logger.FromContext(ctx)
	start := time.Now()

	removed, err := p.Prune(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Cache prune failed")
		return
	}
	log.Info().Int("removed", removed).Dur("took", time.Since(start)).Msg("Cache prune completed")
}
