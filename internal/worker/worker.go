// Package worker consumes workflow triggers from the Redis stream and
// executes them on the runner, one message at a time per consumer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"debugiq.app/backend/common/logger"
	"debugiq.app/backend/internal/queue"
	"debugiq.app/backend/internal/store"
	"debugiq.app/backend/internal/workflow"
)

type Config struct {
	MaxAttempts int
}

type Worker struct {
	consumer *queue.RedisConsumer
	runner   *workflow.Runner
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, runner *workflow.Runner, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		consumer:  consumer,
		runner:    runner,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "debugiq.worker",
	})

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"issue_id", msg.IssueID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"issue_id", msg.IssueID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs one workflow trigger to completion and acknowledges
// the message. Exported so the reclaimer can reuse it.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		IssueID:   logger.Ptr(msg.IssueID),
		MessageID: logger.Ptr(msg.ID),
	})

	slog.InfoContext(ctx, "processing workflow trigger",
		"message_id", msg.ID,
		"issue_id", msg.IssueID,
		"attempt", msg.Attempt)

	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "workflow.execute")
	ctx = span.Context()
	defer span.End()

	err := w.runner.Execute(ctx, msg.IssueID)
	switch {
	case err == nil:
		// Run finished, terminal state written by the runner.
	case errors.Is(err, store.ErrNotFound):
		slog.WarnContext(ctx, "trigger references unknown issue, dropping",
			"issue_id", msg.IssueID)
	case errors.Is(err, workflow.ErrRunInProgress):
		slog.InfoContext(ctx, "run already in progress, dropping duplicate trigger",
			"issue_id", msg.IssueID)
	default:
		// Don't ack, let the failure handler requeue or DLQ.
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The message will be reclaimed, and a duplicate run is rejected
		// by the runner, so this is safe to only log.
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}

	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"issue_id", msg.IssueID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"issue_id", msg.IssueID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
