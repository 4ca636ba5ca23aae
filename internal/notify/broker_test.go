package notify_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/notify"
)

var _ = Describe("Broker", func() {
	var (
		broker *notify.Broker
		ctx    context.Context
	)

	event := func(issueID string, status model.Status) notify.StatusEvent {
		return notify.StatusEvent{IssueID: issueID, Status: status}
	}

	BeforeEach(func() {
		ctx = context.Background()
		broker = notify.NewBroker()
	})

	It("delivers events to a subscriber of the issue", func() {
		events, cancel := broker.Subscribe(ctx, "i-1")
		defer cancel()

		broker.Publish(ctx, event("i-1", model.StatusFetchingDetails))

		Eventually(events).Should(Receive(WithTransform(func(e notify.StatusEvent) model.Status {
			return e.Status
		}, Equal(model.StatusFetchingDetails))))
	})

	It("fans out to every subscriber of the same issue", func() {
		first, cancelFirst := broker.Subscribe(ctx, "i-1")
		defer cancelFirst()
		second, cancelSecond := broker.Subscribe(ctx, "i-1")
		defer cancelSecond()

		broker.Publish(ctx, event("i-1", model.StatusDiagnosisInProgress))

		Eventually(first).Should(Receive())
		Eventually(second).Should(Receive())
	})

	It("does not deliver events for other issues", func() {
		events, cancel := broker.Subscribe(ctx, "i-1")
		defer cancel()

		broker.Publish(ctx, event("i-2", model.StatusFetchingDetails))

		Consistently(events).ShouldNot(Receive())
	})

	It("publishing with no subscribers is a no-op", func() {
		Expect(func() {
			broker.Publish(ctx, event("i-1", model.StatusFetchingDetails))
		}).NotTo(Panic())
	})

	It("stops delivery and closes the channel after cancel", func() {
		events, cancel := broker.Subscribe(ctx, "i-1")
		cancel()

		broker.Publish(ctx, event("i-1", model.StatusFetchingDetails))

		Eventually(events).Should(BeClosed())
	})

	It("cancel is safe to call more than once", func() {
		_, cancel := broker.Subscribe(ctx, "i-1")
		Expect(func() {
			cancel()
			cancel()
		}).NotTo(Panic())
	})

	It("drops events for a subscriber that stopped reading", func() {
		events, cancel := broker.Subscribe(ctx, "i-1")
		defer cancel()

		// Fill the buffer and then some; Publish must never block.
		for i := 0; i < 40; i++ {
			broker.Publish(ctx, event("i-1", model.StatusDiagnosisInProgress))
		}

		received := 0
	drain:
		for {
			select {
			case <-events:
				received++
			default:
				break drain
			}
		}
		Expect(received).To(BeNumerically("<", 40))
		Expect(received).To(BeNumerically(">", 0))
	})
})
