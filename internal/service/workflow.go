package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"debugiq.app/backend/internal/queue"
	"debugiq.app/backend/internal/store"
	"debugiq.app/backend/internal/workflow"
)

// WorkflowService accepts workflow triggers. The in-process implementation
// runs them on the local runner; the queue implementation hands them to a
// worker over Redis streams.
type WorkflowService interface {
	Trigger(ctx context.Context, issueID string) error
}

type runnerDispatch struct {
	runner *workflow.Runner
}

func NewRunnerDispatch(runner *workflow.Runner) WorkflowService {
	return &runnerDispatch{runner: runner}
}

func (d *runnerDispatch) Trigger(ctx context.Context, issueID string) error {
	return d.runner.Trigger(ctx, issueID)
}

type queueDispatch struct {
	store    store.IssueStore
	producer queue.Producer
}

func NewQueueDispatch(st store.IssueStore, producer queue.Producer) WorkflowService {
	return &queueDispatch{store: st, producer: producer}
}

func (d *queueDispatch) Trigger(ctx context.Context, issueID string) error {
	// An existence check up front keeps the unknown-id contract identical
	// to in-process dispatch. Duplicate-run rejection happens on the
	// worker, where the running set lives.
	if _, err := d.store.Get(ctx, issueID); err != nil {
		return err
	}

	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	if err := d.producer.Enqueue(ctx, queue.TriggerMessage{
		IssueID: issueID,
		TraceID: traceID,
	}); err != nil {
		return fmt.Errorf("dispatching workflow trigger: %w", err)
	}

	slog.InfoContext(ctx, "workflow trigger dispatched to queue", "issue_id", issueID)
	return nil
}
