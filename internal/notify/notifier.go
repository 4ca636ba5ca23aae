package notify

import (
	"context"
	"time"

	"debugiq.app/backend/internal/model"
)

// StatusEvent is one status change pushed to subscribers. Delivery is
// best-effort and at-most-once; the issue store, not the notifier, is the
// source of truth.
type StatusEvent struct {
	IssueID     string       `json:"issue_id"`
	Status      model.Status `json:"status"`
	StatusError *string      `json:"status_error"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Notifier fans status events out to live subscribers. Publish never
// surfaces subscriber-side failures to the caller: a dead or slow
// subscriber is logged and skipped so the workflow runner is never blocked
// by an observer.
type Notifier interface {
	Publish(ctx context.Context, event StatusEvent)
	// Subscribe returns a stream of events for one issue id and a cancel
	// function that stops delivery and releases the subscription. The
	// channel is closed on cancel. There is no replay: callers must read
	// current state from the store before relying on the stream.
	Subscribe(ctx context.Context, issueID string) (<-chan StatusEvent, func())
}
