package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

const defaultEventRetention = 30 * 24 * time.Hour

// eventPruner is the slice of the ledger repository the job needs.
type eventPruner interface {
	PruneProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// EventPruneJobParams configure the processed-event retention job.
type EventPruneJobParams struct {
	Logger     *logger.Logger
	LedgerRepo eventPruner
	Retention  time.Duration
	Now        func() time.Time
}

// NewEventPruneJob builds a job that deletes processed-event records older
// than the retention window. The records only serve webhook deduplication;
// providers stop redelivering long before the window closes.
func NewEventPruneJob(params EventPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.LedgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultEventRetention
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &eventPruneJob{
		logg:       params.Logger,
		ledgerRepo: params.LedgerRepo,
		retention:  retention,
		now:        now,
	}, nil
}

type eventPruneJob struct {
	logg       *logger.Logger
	ledgerRepo eventPruner
	retention  time.Duration
	now        func() time.Time
}

func (j *eventPruneJob) Name() string { return "processed-event-prune" }

func (j *eventPruneJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	pruned, err := j.ledgerRepo.PruneProcessedEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune processed events: %w", err)
	}
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"pruned": pruned,
		"cutoff": cutoff,
	})
	j.logg.Info(reportCtx, "processed event prune complete")
	return nil
}
