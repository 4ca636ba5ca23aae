package notify

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Broker is the in-process Notifier: a channel-of-channels keyed by issue
// id. It serves single-replica deployments and tests.
type Broker struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[string]map[int64]chan StatusEvent
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int64]chan StatusEvent)}
}

func (b *Broker) Publish(ctx context.Context, event StatusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs[event.IssueID] {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up. Dropping is the contract:
			// correctness is guaranteed through the store, never the stream.
			slog.WarnContext(ctx, "dropping status event for slow subscriber",
				"issue_id", event.IssueID,
				"subscriber_id", id,
				"status", event.Status)
		}
	}
}

func (b *Broker) Subscribe(_ context.Context, issueID string) (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[issueID] == nil {
		b.subs[issueID] = make(map[int64]chan StatusEvent)
	}
	b.subs[issueID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[issueID], id)
			if len(b.subs[issueID]) == 0 {
				delete(b.subs, issueID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
