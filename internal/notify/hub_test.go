package notify

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestNotify(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Notify Suite")
}

var _ = Describe("Hub", func() {
	var hub *Hub

	BeforeEach(func() {
		hub = NewHub()
	})

	Describe("Publish", func() {
		When("there are no subscribers", func() {
			It("does not block", func() {
				hub.Publish()
			})
		})

		When("a subscriber is active", func() {
			var sub *Subscription

			BeforeEach(func() {
				sub = hub.Subscribe()
				DeferCleanup(sub.Close)
			})

			It("delivers a hint", func() {
				hub.Publish()
				Eventually(sub.C).Should(Receive())
			})

			It("delivers at least one hint per change even when hints coalesce", func() {
				hub.Publish()
				hub.Publish()
				hub.Publish()
				// The buffer holds one coalesced hint; draining it must
				// succeed, and the subscriber re-queries on that hint.
				Eventually(sub.C).Should(Receive())
				Consistently(sub.C).ShouldNot(Receive())

				hub.Publish()
				Eventually(sub.C).Should(Receive())
			})
		})

		When("multiple subscribers are active", func() {
			It("fans out to every subscriber independently", func() {
				first := hub.Subscribe()
				second := hub.Subscribe()
				DeferCleanup(first.Close)
				DeferCleanup(second.Close)

				hub.Publish()

				Eventually(first.C).Should(Receive())
				Eventually(second.C).Should(Receive())
			})

			It("is not blocked by a subscriber that never drains", func() {
				stalled := hub.Subscribe()
				active := hub.Subscribe()
				DeferCleanup(stalled.Close)
				DeferCleanup(active.Close)

				// The stalled subscriber's buffer fills after one hint;
				// further publishes must still reach the active one.
				for i := 0; i < 10; i++ {
					hub.Publish()
				}
				Eventually(active.C).Should(Receive())
			})
		})
	})

	Describe("Close", func() {
		It("detaches the subscriber", func() {
			sub := hub.Subscribe()
			Expect(hub.Subscribers()).To(Equal(1))

			sub.Close()
			Expect(hub.Subscribers()).To(Equal(0))
		})

		It("is safe to call twice", func() {
			sub := hub.Subscribe()
			sub.Close()
			sub.Close()
		})
	})
})
