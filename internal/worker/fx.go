package worker

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("worker",
	fx.Provide(
		newLifecycleWorker,
	),
)

// Params are what the module needs supplied.
type Params struct {
	fx.In

	Ctx      context.Context
	Cycler   Cycler
	Client   client.Client
	Interval time.Duration
}

// Builds the worker and ties running it to the app's lifecycle.
func newLifecycleWorker(lc fx.Lifecycle, p Params) (worker.Worker, error) {
	w, err := NewWorker(p.Ctx, p.Cycler, p.Client, p.Interval)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return w.Start()
		},
		OnStop: func(context.Context) error {
			w.Stop()
			p.Client.Close()

			return nil
		},
	})

	return w, nil
}
