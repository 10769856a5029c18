package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/veneer/pkg/eventstream"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/storage"
	"github.com/papercomputeco/veneer/pkg/storage/inmemory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnRecordedEvent
	err    error
}

func (r *recordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnRecordedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) Events() []*eventstream.TurnRecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.TurnRecordedEvent(nil), r.events...)
}

type failingDriver struct {
	*inmemory.Driver
}

func (failingDriver) Put(context.Context, *storage.Turn) (bool, error) {
	return false, errors.New("disk full")
}

func testTurn(id string) storage.Turn {
	return storage.Turn{
		ID:               id,
		Model:            "test-model",
		Stream:           true,
		StatusCode:       200,
		Prompt:           "What is 2+2?",
		Response:         "2+2 equals 4.",
		PromptTokens:     10,
		CompletionTokens: 5,
		Duration:         time.Second,
		CreatedAt:        time.Now(),
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp        *Pool
		driver    *inmemory.Driver
		publisher *recordingPublisher
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		publisher = &recordingPublisher{}

		var err error
		wp, err = NewPool(&Config{
			Driver:    driver,
			Publisher: publisher,
			Source:    eventstream.EventSource{Provider: "venice"},
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		wp.Close()
	})

	It("requires a driver", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{Path: "/chat", Turn: testTurn("t1")})).To(BeTrue())
		})

		It("returns false when the queue is full", func() {
			blocked := make(chan struct{})
			full, err := NewPool(&Config{
				Driver:     driver,
				NumWorkers: 1,
				QueueSize:  1,
				OnStored:   func(storage.Turn) { <-blocked },
			})
			Expect(err).NotTo(HaveOccurred())

			// The first job occupies the only worker, the second fills the queue.
			Expect(full.Enqueue(Job{Turn: testTurn("a")})).To(BeTrue())
			Eventually(func() int {
				turns, _ := driver.List(ctx, storage.ListOptions{})
				return len(turns)
			}).Should(Equal(1))
			Expect(full.Enqueue(Job{Turn: testTurn("b")})).To(BeTrue())
			Expect(full.Enqueue(Job{Turn: testTurn("c")})).To(BeFalse())

			close(blocked)
			full.Close()
		})
	})

	Describe("processing", func() {
		It("stores the turn and publishes one event", func() {
			wp.Enqueue(Job{Path: "/chat", Turn: testTurn("t1")})
			wp.Close()

			got, err := driver.Get(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Response).To(Equal("2+2 equals 4."))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeTurnRecorded))
			Expect(events[0].Turn.ID).To(Equal("t1"))
			Expect(events[0].Source.Provider).To(Equal("venice"))
			Expect(events[0].RequestMeta.Path).To(Equal("/chat"))
		})

		It("does not publish for a duplicate turn", func() {
			wp.Enqueue(Job{Path: "/chat", Turn: testTurn("t1")})
			wp.Enqueue(Job{Path: "/chat", Turn: testTurn("t1")})
			wp.Close()

			Expect(publisher.Events()).To(HaveLen(1))
		})

		It("keeps the turn when publishing fails", func() {
			publisher.err = errors.New("broker down")
			wp.Enqueue(Job{Path: "/chat", Turn: testTurn("t1")})
			wp.Close()

			_, err := driver.Get(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("does not publish when storage fails", func() {
			failing, err := NewPool(&Config{
				Driver:    failingDriver{inmemory.NewDriver()},
				Publisher: publisher,
			})
			Expect(err).NotTo(HaveOccurred())

			failing.Enqueue(Job{Turn: testTurn("t1")})
			failing.Close()

			Expect(publisher.Events()).To(BeEmpty())
		})

		It("calls OnStored for new turns", func() {
			var stored []string
			var mu sync.Mutex
			hooked, err := NewPool(&Config{
				Driver:     inmemory.NewDriver(),
				NumWorkers: 1,
				OnStored: func(t storage.Turn) {
					mu.Lock()
					stored = append(stored, t.ID)
					mu.Unlock()
				},
			})
			Expect(err).NotTo(HaveOccurred())

			hooked.Enqueue(Job{Turn: testTurn("x")})
			hooked.Enqueue(Job{Turn: testTurn("x")})
			hooked.Close()

			Expect(stored).To(Equal([]string{"x"}))
		})
	})

	It("can be closed twice", func() {
		wp.Close()
		Expect(wp.Close).NotTo(Panic())
	})

	It("rejects jobs after Close", func() {
		wp.Close()
		Expect(wp.Enqueue(Job{Turn: testTurn("late")})).To(BeFalse())
	})
})
