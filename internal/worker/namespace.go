package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/protobuf/types/known/durationpb"
)

// DefaultNamespace is the Temporal namespace cycles run in.
const DefaultNamespace = "default"

// EnsureNamespace registers the namespace, treating one that already exists as success.
func EnsureNamespace(ctx context.Context, cli workflowservice.WorkflowServiceClient, namespace string) error {
	_, err := cli.RegisterNamespace(ctx, &workflowservice.RegisterNamespaceRequest{
		Namespace: namespace,
		// Cycle histories are small and only useful for a few days
		WorkflowExecutionRetentionPeriod: durationpb.New(72 * time.Hour),
	})
	var alreadyErr *serviceerror.NamespaceAlreadyExists
	if errors.As(err, &alreadyErr) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("error registering namespace %q: %s", namespace, err)
	}

	return nil
}
