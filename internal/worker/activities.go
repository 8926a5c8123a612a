package worker

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/jdholdren/hnews/internal/ingest"
)

// Cycler runs a single ingestion cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (ingest.Report, error)
}

type activities struct {
	cycler Cycler
}

// Instance to make the workflow a bit more readable
var acts = activities{}

// RunCycle runs one ingestion cycle on this worker.
//
// A cycle that's already running in this process isn't retried: the next
// scheduled run will pick up where it left off.
func (a activities) RunCycle(ctx context.Context) (ingest.Report, error) {
	l := activity.GetLogger(ctx)

	r, err := a.cycler.RunCycle(ctx)
	if errors.Is(err, ingest.ErrCycleRunning) {
		return r, temporal.NewNonRetryableApplicationError("cycle already running", errTypeCycleRunning, err)
	}
	if err != nil {
		return r, temporal.NewApplicationError("error running cycle", errTypeInternal, err)
	}

	l.Info("ran ingestion cycle",
		"cycle_id", r.CycleID,
		"mode", r.Mode,
		"created", r.Created,
		"rejected", r.Rejected,
	)

	return r, nil
}
