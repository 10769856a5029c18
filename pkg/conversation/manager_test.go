package conversation_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/veneer/pkg/client"
	"github.com/papercomputeco/veneer/pkg/conversation"
	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/metering"
)

const (
	helChunk = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n"
	loChunk  = "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\ndata: [DONE]\n"
)

type updateRecord struct {
	turnID  string
	state   conversation.State
	content string
	err     error
}

type updateLog struct {
	mu      sync.Mutex
	updates []updateRecord
}

func (l *updateLog) record(u conversation.Update) {
	r := updateRecord{turnID: u.TurnID, state: u.State, err: u.Err}
	if u.Message != nil {
		r.content = u.Message.Content
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, r)
}

func (l *updateLog) all() []updateRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]updateRecord(nil), l.updates...)
}

func (l *updateLog) count(s conversation.State) int {
	n := 0
	for _, u := range l.all() {
		if u.state == s {
			n++
		}
	}
	return n
}

func blockUntilCancelled(ctx context.Context, _ int, _ *llm.ChatRequest) (*client.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var _ = Describe("Manager", func() {
	var (
		transport *fakeTransport
		params    llm.ChatParams
		prices    conversation.PriceResolver
		log       *updateLog
		m         *conversation.Manager
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		transport = &fakeTransport{
			respond: func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				return eventStream(helChunk, loChunk), nil
			},
		}
		params = llm.ChatParams{Model: "llama-3.3-70b"}
		prices = nil
		log = &updateLog{}
	})

	JustBeforeEach(func() {
		var err error
		m, err = conversation.New(conversation.Config{
			Transport: transport,
			Params:    func() llm.ChatParams { return params },
			Prices:    prices,
		})
		Expect(err).NotTo(HaveOccurred())
		m.Subscribe(log.record)
	})

	It("requires a transport", func() {
		_, err := conversation.New(conversation.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("starts idle with an empty transcript", func() {
		Expect(m.State()).To(Equal(conversation.Idle))
		Expect(m.History()).To(BeEmpty())
		Expect(m.Active()).To(BeNil())
	})

	It("rejects blank messages", func() {
		_, err := m.Send(ctx, "   ")
		Expect(err).To(MatchError(conversation.ErrEmptyMessage))
		Expect(m.History()).To(BeEmpty())
	})

	Describe("a streamed turn", func() {
		It("assembles split deltas into the assistant message", func() {
			turn, err := m.Send(ctx, "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Wait()).To(Equal(conversation.Finalized))

			history := m.History()
			Expect(history).To(HaveLen(2))
			Expect(history[0].Role).To(Equal(llm.RoleUser))
			Expect(history[0].Content).To(Equal("hi"))
			Expect(history[0].ID).To(Equal(turn.UserMessageID))

			Expect(history[1].ID).To(Equal(turn.ID))
			Expect(history[1].Role).To(Equal(llm.RoleAssistant))
			Expect(history[1].Content).To(Equal("Hello"))
			Expect(history[1].Status).To(Equal(llm.StatusComplete))
			Expect(history[1].Notice).To(BeFalse())
			Expect(*history[1].Metrics.OutputTokens).To(Equal(2))

			Expect(m.State()).To(Equal(conversation.Finalized))
			Expect(m.Active()).To(BeNil())
		})

		It("walks the states in order", func() {
			turn, err := m.Send(ctx, "hi")
			Expect(err).NotTo(HaveOccurred())
			turn.Wait()

			var states []conversation.State
			for _, u := range log.all() {
				if len(states) == 0 || states[len(states)-1] != u.state {
					states = append(states, u.state)
				}
			}
			Expect(states).To(Equal([]conversation.State{
				conversation.UserSubmitted,
				conversation.AwaitingFirstByte,
				conversation.Streaming,
				conversation.Finalized,
			}))
		})

		It("publishes one streaming update per event and finalizes once", func() {
			turn, err := m.Send(ctx, "hi")
			Expect(err).NotTo(HaveOccurred())
			turn.Wait()

			var contents []string
			for _, u := range log.all() {
				if u.state == conversation.Streaming {
					contents = append(contents, u.content)
				}
			}
			Expect(contents).To(Equal([]string{"Hel", "Hello"}))
			Expect(log.count(conversation.Finalized)).To(Equal(1))
		})

		It("sends the request with the configured parameters", func() {
			params.Temperature = llm.Ptr(0.7)
			params.VeniceParameters.CharacterSlug = "alan-watts"

			turn, _ := m.Send(ctx, "hi")
			turn.Wait()

			reqs := transport.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].Model).To(Equal("llama-3.3-70b"))
			Expect(reqs[0].Stream).To(BeTrue())
			Expect(*reqs[0].Temperature).To(Equal(0.7))
			Expect(reqs[0].VeniceParameters).To(HaveKeyWithValue("character_slug", "alan-watts"))
			Expect(reqs[0].Messages).To(Equal([]llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}}))
		})

		It("skips malformed events", func() {
			transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				return eventStream("data: {\"choices\":[{\"delta\"\n", helChunk, loChunk), nil
			}

			turn, _ := m.Send(ctx, "hi")
			Expect(turn.Wait()).To(Equal(conversation.Finalized))
			Expect(m.History()[1].Content).To(Equal("Hello"))
		})

		It("inserts an empty assistant message for a stream without events", func() {
			transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				return eventStream(": keepalive\n", "data: [DONE]\n"), nil
			}

			turn, _ := m.Send(ctx, "hi")
			Expect(turn.Wait()).To(Equal(conversation.Finalized))

			history := m.History()
			Expect(history).To(HaveLen(2))
			Expect(history[1].Content).To(BeEmpty())
			Expect(history[1].Status).To(Equal(llm.StatusComplete))
			Expect(*history[1].Metrics.OutputTokens).To(BeZero())
		})

		It("accepts a non-streaming JSON completion", func() {
			transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				body := `{"choices":[{"message":{"content":"Hello there"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`
				return &client.Response{Body: io.NopCloser(&chunkReader{chunks: []string{body}})}, nil
			}

			turn, _ := m.Send(ctx, "hi")
			Expect(turn.Wait()).To(Equal(conversation.Finalized))

			msg := m.History()[1]
			Expect(msg.Content).To(Equal("Hello there"))
			Expect(*msg.Metrics.InputTokens).To(Equal(3))
			Expect(*msg.Metrics.OutputTokens).To(Equal(2))
			Expect(*msg.Metrics.TotalTokens).To(Equal(5))
		})

		It("leaves earlier history snapshots untouched", func() {
			pr, pw := io.Pipe()
			transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				return &client.Response{Body: pr, EventStream: true}, nil
			}

			turn, _ := m.Send(ctx, "hi")
			go func() {
				_, _ = pw.Write([]byte(helChunk))
			}()
			Eventually(turn.State).Should(Equal(conversation.Streaming))

			snapshot := m.History()
			Expect(snapshot[1].Content).To(Equal("Hel"))

			go func() {
				_, _ = pw.Write([]byte(loChunk))
				_ = pw.Close()
			}()
			Expect(turn.Wait()).To(Equal(conversation.Finalized))

			Expect(snapshot[1].Content).To(Equal("Hel"))
			Expect(snapshot[1].Status).To(Equal(llm.StatusStreaming))
			Expect(m.History()[1].Content).To(Equal("Hello"))
		})
	})

	Describe("cost", func() {
		It("is omitted when no price resolves", func() {
			turn, _ := m.Send(ctx, "hi")
			turn.Wait()
			Expect(m.History()[1].Metrics.Cost).To(BeNil())
		})

		Context("with a known price", func() {
			BeforeEach(func() {
				prices = fixedPrices{price: metering.Price{
					Input:  llm.Ptr(1.0),
					Output: llm.Ptr(2.0),
				}}
				transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
					return eventStream(
						helChunk,
						"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":1000,\"completion_tokens\":500}}\n",
						"data: [DONE]\n",
					), nil
				}
			})

			It("prices the authoritative usage", func() {
				turn, _ := m.Send(ctx, "hi")
				turn.Wait()

				metrics := m.History()[1].Metrics
				Expect(*metrics.InputTokens).To(Equal(1000))
				Expect(*metrics.OutputTokens).To(Equal(500))
				Expect(*metrics.Cost).To(BeNumerically("~", 0.002, 1e-9))
			})
		})
	})

	Describe("cancellation", func() {
		It("keeps partial content when cancelled mid-stream", func() {
			pr, pw := io.Pipe()
			transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				return &client.Response{Body: pr, EventStream: true}, nil
			}

			turn, _ := m.Send(ctx, "hi")
			go func() {
				_, _ = pw.Write([]byte(helChunk))
			}()
			Eventually(turn.State).Should(Equal(conversation.Streaming))

			turn.Cancel()
			Expect(turn.Wait()).To(Equal(conversation.Cancelled))
			Expect(turn.Err()).NotTo(HaveOccurred())

			msg := m.History()[1]
			Expect(msg.Content).To(Equal("Hel"))
			Expect(msg.Status).To(Equal(llm.StatusCancelled))
			Expect(msg.Notice).To(BeFalse())
			Expect(m.State()).To(Equal(conversation.Cancelled))
		})

		It("inserts the notice when cancelled before the first byte", func() {
			transport.respond = blockUntilCancelled

			turn, _ := m.Send(ctx, "hi")
			Eventually(turn.State).Should(Equal(conversation.AwaitingFirstByte))

			Expect(m.Cancel()).To(BeTrue())
			Expect(turn.Wait()).To(Equal(conversation.Cancelled))

			history := m.History()
			Expect(history).To(HaveLen(2))
			Expect(history[1].ID).To(Equal(turn.ID))
			Expect(history[1].Content).To(Equal(conversation.CancelledNotice))
			Expect(history[1].Notice).To(BeTrue())
			Expect(history[1].Status).To(Equal(llm.StatusCancelled))
		})

		It("cancels when the caller's context is cancelled", func() {
			transport.respond = blockUntilCancelled
			callerCtx, cancel := context.WithCancel(ctx)

			turn, _ := m.Send(callerCtx, "hi")
			cancel()
			Expect(turn.Wait()).To(Equal(conversation.Cancelled))
		})

		It("reports nothing to cancel when idle", func() {
			Expect(m.Cancel()).To(BeFalse())
		})

		It("is a no-op on a finished turn", func() {
			turn, _ := m.Send(ctx, "hi")
			Expect(turn.Wait()).To(Equal(conversation.Finalized))

			turn.Cancel()
			Expect(turn.State()).To(Equal(conversation.Finalized))
			Expect(m.History()[1].Content).To(Equal("Hello"))
			Expect(log.count(conversation.Finalized)).To(Equal(1))
			Expect(log.count(conversation.Cancelled)).To(BeZero())
		})
	})

	Describe("supersession", func() {
		It("cancels the in-flight turn before dispatching the next", func() {
			pr, pw := io.Pipe()
			var first *conversation.Turn
			var firstDoneAtDispatch atomic.Bool

			transport.respond = func(_ context.Context, n int, _ *llm.ChatRequest) (*client.Response, error) {
				if n == 1 {
					return &client.Response{Body: pr, EventStream: true}, nil
				}
				select {
				case <-first.Done():
					firstDoneAtDispatch.Store(true)
				default:
				}
				return eventStream(helChunk, loChunk), nil
			}

			var err error
			first, err = m.Send(ctx, "one")
			Expect(err).NotTo(HaveOccurred())
			go func() {
				_, _ = pw.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n"))
			}()
			Eventually(first.State).Should(Equal(conversation.Streaming))

			second, err := m.Send(ctx, "two")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.State()).To(Equal(conversation.Cancelled))
			Expect(second.Wait()).To(Equal(conversation.Finalized))
			Expect(firstDoneAtDispatch.Load()).To(BeTrue())

			history := m.History()
			Expect(history).To(HaveLen(4))
			Expect(history[1].Content).To(Equal("partial"))
			Expect(history[1].Status).To(Equal(llm.StatusCancelled))
			Expect(history[2].Content).To(Equal("two"))
			Expect(history[3].Content).To(Equal("Hello"))

			reqs := transport.Requests()
			Expect(reqs[1].Messages).To(Equal([]llm.ChatMessage{
				{Role: llm.RoleUser, Content: "one"},
				{Role: llm.RoleAssistant, Content: "partial"},
				{Role: llm.RoleUser, Content: "two"},
			}))
		})
	})

	Describe("failure", func() {
		It("leaves only the user message when the request fails", func() {
			transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				return nil, &client.StatusError{StatusCode: http.StatusBadGateway, Body: `{"error":"upstream request failed"}`}
			}

			turn, _ := m.Send(ctx, "hi")
			Expect(turn.Wait()).To(Equal(conversation.Failed))

			var statusErr *client.StatusError
			Expect(errors.As(turn.Err(), &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusBadGateway))

			history := m.History()
			Expect(history).To(HaveLen(1))
			Expect(history[0].Role).To(Equal(llm.RoleUser))

			failed := log.all()[len(log.all())-1]
			Expect(failed.state).To(Equal(conversation.Failed))
			Expect(failed.err).To(HaveOccurred())
		})

		It("substitutes the fallback text when the stream breaks", func() {
			transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				return &client.Response{
					Body:        io.NopCloser(&failingReader{data: helChunk}),
					EventStream: true,
				}, nil
			}

			turn, _ := m.Send(ctx, "hi")
			Expect(turn.Wait()).To(Equal(conversation.Failed))
			Expect(turn.Err()).To(MatchError(ContainSubstring("connection reset")))

			msg := m.History()[1]
			Expect(msg.Content).To(Equal(conversation.FailureText))
			Expect(msg.Notice).To(BeTrue())
			Expect(msg.Status).To(Equal(llm.StatusFailed))
		})

		It("fails on an undecodable JSON completion", func() {
			transport.respond = func(context.Context, int, *llm.ChatRequest) (*client.Response, error) {
				return &client.Response{Body: io.NopCloser(&chunkReader{chunks: []string{"{not json"}})}, nil
			}

			turn, _ := m.Send(ctx, "hi")
			Expect(turn.Wait()).To(Equal(conversation.Failed))
			Expect(m.History()).To(HaveLen(1))
		})
	})

	Describe("context", func() {
		It("prefixes the system prompt and skips substituted messages", func() {
			params.SystemPrompt = "Be brief."
			transport.respond = func(ctx context.Context, n int, req *llm.ChatRequest) (*client.Response, error) {
				if n == 1 {
					return blockUntilCancelled(ctx, n, req)
				}
				return eventStream(helChunk, loChunk), nil
			}

			first, _ := m.Send(ctx, "one")
			first.Cancel()
			Expect(first.Wait()).To(Equal(conversation.Cancelled))

			second, _ := m.Send(ctx, "two")
			second.Wait()

			reqs := transport.Requests()
			Expect(reqs[1].Messages).To(Equal([]llm.ChatMessage{
				{Role: llm.RoleSystem, Content: "Be brief."},
				{Role: llm.RoleUser, Content: "one"},
				{Role: llm.RoleUser, Content: "two"},
			}))
			Expect(m.History()).To(HaveLen(4))
		})
	})

	Describe("Clear", func() {
		It("is refused while a turn is in flight", func() {
			transport.respond = blockUntilCancelled

			turn, _ := m.Send(ctx, "hi")
			Expect(m.Clear()).To(MatchError(conversation.ErrTurnInFlight))
			Expect(m.History()).To(HaveLen(1))

			turn.Cancel()
			turn.Wait()
		})

		It("resets the transcript once the turn finished", func() {
			turn, _ := m.Send(ctx, "hi")
			turn.Wait()

			Expect(m.Clear()).To(Succeed())
			Expect(m.History()).To(BeEmpty())
			Expect(m.State()).To(Equal(conversation.Idle))

			next, _ := m.Send(ctx, "again")
			next.Wait()
			Expect(m.History()).To(HaveLen(2))
			Expect(transport.Requests()[1].Messages).To(HaveLen(1))
		})
	})

	Describe("Restore", func() {
		It("loads a saved transcript used as context for the next turn", func() {
			Expect(m.Restore([]llm.Message{
				{ID: "u1", Role: llm.RoleUser, Content: "one"},
				{ID: "a1", Role: llm.RoleAssistant, Content: "half", Status: llm.StatusStreaming},
			})).To(Succeed())

			history := m.History()
			Expect(history).To(HaveLen(2))
			Expect(history[1].Status).To(Equal(llm.StatusCancelled))

			turn, _ := m.Send(ctx, "two")
			turn.Wait()
			Expect(transport.Requests()[0].Messages).To(HaveLen(3))
			Expect(m.History()).To(HaveLen(4))
		})

		It("is refused while a turn is in flight", func() {
			transport.respond = blockUntilCancelled

			turn, _ := m.Send(ctx, "hi")
			Expect(m.Restore(nil)).To(MatchError(conversation.ErrTurnInFlight))

			turn.Cancel()
			turn.Wait()
		})
	})

	Describe("Subscribe", func() {
		It("stops delivering after unsubscribe", func() {
			other := &updateLog{}
			unsubscribe := m.Subscribe(other.record)

			turn, _ := m.Send(ctx, "hi")
			turn.Wait()
			delivered := len(other.all())
			Expect(delivered).To(BeNumerically(">", 0))

			unsubscribe()
			unsubscribe()
			turn, _ = m.Send(ctx, "again")
			turn.Wait()
			Expect(other.all()).To(HaveLen(delivered))
		})

		It("lets subscribers read the history", func() {
			var seen atomic.Int32
			m.Subscribe(func(u conversation.Update) {
				if len(m.History()) == len(u.History) {
					seen.Add(1)
				}
			})

			turn, _ := m.Send(ctx, "hi")
			turn.Wait()
			Expect(seen.Load()).To(BeNumerically(">", 0))
		})
	})
})
