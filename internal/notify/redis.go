package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier fans events out over Redis pub/sub so subscribers connected
// to any server replica see status changes published by any worker.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func channelName(issueID string) string {
	return "issue-status:" + issueID
}

func (n *RedisNotifier) Publish(ctx context.Context, event StatusEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal status event",
			"error", err, "issue_id", event.IssueID)
		return
	}

	if err := n.client.Publish(ctx, channelName(event.IssueID), payload).Err(); err != nil {
		// Fire-and-forget: publish failures never reach the runner.
		slog.ErrorContext(ctx, "failed to publish status event",
			"error", err, "issue_id", event.IssueID, "status", event.Status)
	}
}

func (n *RedisNotifier) Subscribe(ctx context.Context, issueID string) (<-chan StatusEvent, func()) {
	pubsub := n.client.Subscribe(ctx, channelName(issueID))
	out := make(chan StatusEvent, subscriberBuffer)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(ctx, "failed to decode status event",
					"error", err, "issue_id", issueID)
				continue
			}
			select {
			case out <- event:
			default:
				slog.WarnContext(ctx, "dropping status event for slow subscriber",
					"issue_id", issueID, "status", event.Status)
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return out, cancel
}
