// Package worker runs ingestion cycles on a Temporal schedule.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

const (
	TaskQueue = "ingest"

	// ScheduleID names the schedule that kicks off cycles.
	ScheduleID = "ingest_cycle"

	DefaultInterval = 60 * time.Second
)

// NewWorker sets up the worker with registration of workflows, activities, and schedules.
func NewWorker(ctx context.Context, cycler Cycler, cli client.Client, interval time.Duration) (worker.Worker, error) {
	a := activities{
		cycler: cycler,
	}

	w := worker.New(cli, TaskQueue, worker.Options{})

	if err := registerEverything(ctx, w, a, cli, interval); err != nil {
		return nil, fmt.Errorf("error registering workflows and activities: %T, %v", err, err)
	}

	return w, nil
}

func registerEverything(ctx context.Context, w worker.Worker, a activities, cli client.Client, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	// Workflows
	wfs := workflows{}
	w.RegisterWorkflow(wfs.IngestCycle)

	// Activities
	w.RegisterActivity(&a)

	// Schedules:
	// Ingestion cycle. Skipping overlaps keeps cycles from running concurrently.
	handle := cli.ScheduleClient().GetHandle(ctx, ScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		handle, err = cli.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID: ScheduleID,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
			},
			Action: &client.ScheduleWorkflowAction{
				ID:        ScheduleID,
				Workflow:  wfs.IngestCycle,
				TaskQueue: TaskQueue,
			},
			Overlap:            enums.SCHEDULE_OVERLAP_POLICY_SKIP,
			TriggerImmediately: true,
		})
		if err != nil {
			return err
		}
	}

	// Existing schedules pick up a changed interval
	return handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			sched := input.Description.Schedule
			if sched.Spec == nil {
				sched.Spec = &client.ScheduleSpec{}
			}
			sched.Spec.Intervals = []client.ScheduleIntervalSpec{{Every: interval}}
			if sched.Policy == nil {
				sched.Policy = &client.SchedulePolicies{}
			}
			sched.Policy.Overlap = enums.SCHEDULE_OVERLAP_POLICY_SKIP

			return &client.ScheduleUpdate{
				Schedule: &sched,
			}, nil
		},
	})
}

// Error types
//
// These are error types in the temporal sense, not the general "go" error types sense.
// They are used since between activities error types are marshaled and type information is lost.
const (
	errTypeInternal     = "internal"
	errTypeCycleRunning = "cycleRunning"
)
