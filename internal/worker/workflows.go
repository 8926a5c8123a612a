package worker

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/jdholdren/hnews/internal/ingest"
)

type workflows struct{}

// IngestCycle runs a single cycle and reports what it did.
//
// Cycles aren't retried; a failed one is followed by the next scheduled run.
func (workflows) IngestCycle(ctx workflow.Context) (ingest.Report, error) {
	options := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)
	l := workflow.GetLogger(ctx)

	var r ingest.Report
	if err := workflow.ExecuteActivity(ctx, acts.RunCycle).Get(ctx, &r); err != nil {
		l.Error("failed to run ingestion cycle", "error", err)
		return ingest.Report{}, err
	}

	return r, nil
}
