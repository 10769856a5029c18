// Package conversation owns the chat transcript and drives one streaming turn
// at a time through the transport, decoder and assembler.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/veneer/pkg/assembler"
	"github.com/papercomputeco/veneer/pkg/client"
	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/metering"
	"github.com/papercomputeco/veneer/pkg/sse"
)

// Substituted assistant content.
const (
	CancelledNotice = "Response cancelled."
	FailureText     = "Sorry, something went wrong while generating a response. Please try again."
)

var (
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTurnInFlight is returned by Clear while a response is streaming.
	ErrTurnInFlight = errors.New("a response is in flight")
)

// Transport sends chat requests. *client.Client implements it.
type Transport interface {
	Chat(ctx context.Context, req *llm.ChatRequest) (*client.Response, error)
}

// PriceResolver resolves the per-million token price of a model.
// *catalog.Catalog implements it.
type PriceResolver interface {
	Price(ctx context.Context, model string) (metering.Price, error)
}

// Update is delivered to subscribers after every committed change.
type Update struct {
	TurnID string
	State  State

	// History is the transcript after the change. It is shared and must not
	// be modified.
	History []llm.Message

	// Message is the assistant message written by the change, if any.
	Message *llm.Message

	// Err is set when the turn failed.
	Err error
}

// Config holds the collaborators of a Manager.
type Config struct {
	Transport Transport

	// Params returns the generation parameters for the next turn. It is read
	// once per Send.
	Params func() llm.ChatParams

	// Prices is optional. Without it cost is never reported.
	Prices PriceResolver

	Logger *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time

	// IDs defaults to uuid.NewString.
	IDs func() string
}

// Manager owns a conversation transcript. All methods are safe for
// concurrent use.
type Manager struct {
	transport Transport
	params    func() llm.ChatParams
	prices    PriceResolver
	logger    *slog.Logger
	clock     func() time.Time
	ids       func() string

	// sendMu serializes Send so supersession is strictly ordered.
	sendMu sync.Mutex

	// notifyMu is held across a change and its delivery so subscribers
	// observe updates in commit order. It is always taken before mu.
	notifyMu sync.Mutex

	mu      sync.Mutex
	history []llm.Message
	index   map[string]int
	state   State
	active  *Turn
	subs    map[int]func(Update)
	nextSub int
}

// New creates a Manager with an empty transcript.
func New(c Config) (*Manager, error) {
	if c.Transport == nil {
		return nil, errors.New("transport is required")
	}

	m := &Manager{
		transport: c.Transport,
		params:    c.Params,
		prices:    c.Prices,
		logger:    c.Logger,
		clock:     c.Clock,
		ids:       c.IDs,
		index:     make(map[string]int),
		subs:      make(map[int]func(Update)),
	}
	if m.params == nil {
		m.params = func() llm.ChatParams { return llm.ChatParams{} }
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.ids == nil {
		m.ids = uuid.NewString
	}
	return m, nil
}

// History returns the current transcript. The slice is never modified by the
// manager and must not be modified by the caller.
func (m *Manager) History() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history
}

// State returns the state of the current or most recent turn.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active returns the in-flight turn, or nil.
func (m *Manager) Active() *Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Subscribe registers fn for every update and returns a function that removes
// it. fn runs on the goroutine that committed the change and must not call
// Send or Clear.
func (m *Manager) Subscribe(fn func(Update)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Send appends a user message and starts streaming the assistant response.
// Any turn still in flight is cancelled, and its goroutine has finished before
// the new request is dispatched. Cancelling ctx cancels the turn.
func (m *Manager) Send(ctx context.Context, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if prev := m.Active(); prev != nil {
		prev.Cancel()
		<-prev.done
	}

	params := m.params()
	turnCtx, cancel := context.WithCancel(ctx)
	t := &Turn{
		ID:            m.ids(),
		UserMessageID: m.ids(),
		m:             m,
		cancel:        cancel,
		done:          make(chan struct{}),
		state:         UserSubmitted,
	}

	var messages []llm.ChatMessage
	m.mutate(func() (Update, bool) {
		m.appendLocked(llm.Message{
			ID:      t.UserMessageID,
			Role:    llm.RoleUser,
			Content: text,
		})
		messages = m.contextLocked(params.SystemPrompt)
		m.active = t
		m.state = UserSubmitted
		return Update{TurnID: t.ID, State: UserSubmitted}, true
	})

	m.logger.Debug("turn submitted",
		"turn", t.ID,
		"model", params.Model,
		"context_messages", len(messages),
	)

	go m.run(turnCtx, t, llm.NewChatRequest(params, messages))
	return t, nil
}

// Cancel aborts the in-flight turn, if any, and reports whether there was one.
func (m *Manager) Cancel() bool {
	t := m.Active()
	if t == nil {
		return false
	}
	t.Cancel()
	return true
}

// Clear empties the transcript. It fails with ErrTurnInFlight while a turn is
// active.
func (m *Manager) Clear() error {
	var err error
	m.mutate(func() (Update, bool) {
		if m.active != nil {
			err = ErrTurnInFlight
			return Update{}, false
		}
		m.history = nil
		m.index = make(map[string]int)
		m.state = Idle
		return Update{State: Idle}, true
	})
	return err
}

// Restore replaces the transcript with a saved one. A message saved while it
// was still streaming is restored as cancelled. It fails with ErrTurnInFlight
// while a turn is active.
func (m *Manager) Restore(messages []llm.Message) error {
	var err error
	m.mutate(func() (Update, bool) {
		if m.active != nil {
			err = ErrTurnInFlight
			return Update{}, false
		}
		m.history = nil
		m.index = make(map[string]int)
		for _, msg := range messages {
			msg = msg.Clone()
			if msg.Status == llm.StatusStreaming {
				msg.Status = llm.StatusCancelled
			}
			m.appendLocked(msg)
		}
		m.state = Idle
		return Update{State: Idle}, true
	})
	return err
}

func (m *Manager) run(ctx context.Context, t *Turn, req *llm.ChatRequest) {
	defer close(t.done)
	defer t.cancel()

	m.transition(t, AwaitingFirstByte)

	price := m.price(ctx, req.Model)
	asm := assembler.New(assembler.Options{
		MessageID: t.ID,
		Prompt:    llm.PromptText(req.Messages),
		Price:     price,
		Start:     m.clock(),
		Clock:     m.clock,
	})

	resp, err := m.transport.Chat(ctx, req)
	if err != nil {
		m.finish(ctx, t, asm, err)
		return
	}
	defer resp.Body.Close()

	// Unblocks a read that is not bound to ctx.
	stop := context.AfterFunc(ctx, func() { _ = resp.Body.Close() })
	defer stop()

	apply := func(ev llm.StreamEvent) error {
		if snap, ok := asm.Apply(ev); ok {
			m.applySnapshot(t, snap)
		}
		return nil
	}

	if resp.EventStream {
		err = sse.Read(ctx, resp.Body, sse.NewDecoder(sse.WithLogger(m.logger)), apply)
	} else {
		var completion llm.ChatCompletion
		if err = json.NewDecoder(resp.Body).Decode(&completion); err != nil {
			err = fmt.Errorf("decoding chat response: %w", err)
		} else {
			err = apply(llm.EventFromCompletion(&completion))
		}
	}

	m.finish(ctx, t, asm, err)
}

func (m *Manager) price(ctx context.Context, model string) metering.Price {
	if m.prices == nil || model == "" {
		return metering.Price{}
	}
	p, err := m.prices.Price(ctx, model)
	if err != nil {
		m.logger.Debug("price unavailable",
			"model", model,
			"error", err,
		)
		return metering.Price{}
	}
	return p
}

func (m *Manager) transition(t *Turn, s State) {
	m.mutate(func() (Update, bool) {
		t.state = s
		m.state = s
		return Update{TurnID: t.ID, State: s}, true
	})
}

// applySnapshot writes a streaming snapshot. The first one inserts the
// assistant message.
func (m *Manager) applySnapshot(t *Turn, snap assembler.Snapshot) {
	m.mutate(func() (Update, bool) {
		if t.finished {
			return Update{}, false
		}
		msg := snap.Message(llm.StatusStreaming)
		m.upsertLocked(msg)
		t.inserted = true
		t.state = Streaming
		m.state = Streaming
		return Update{TurnID: t.ID, State: Streaming, Message: &msg}, true
	})
}

// finish moves t to its terminal state exactly once. A clean end of stream
// wins over a cancellation that raced it.
func (m *Manager) finish(ctx context.Context, t *Turn, asm *assembler.Assembler, streamErr error) {
	m.mutate(func() (Update, bool) {
		if t.finished {
			return Update{}, false
		}
		t.finished = true

		var (
			state State
			msg   *llm.Message
		)
		switch {
		case streamErr == nil:
			state = Finalized
			final := asm.Finalize().Message(llm.StatusComplete)
			msg = &final

		case ctx.Err() != nil:
			state = Cancelled
			msg = m.cancelledLocked(t, asm)

		default:
			state = Failed
			t.err = streamErr
			if t.inserted {
				msg = &llm.Message{
					ID:      t.ID,
					Role:    llm.RoleAssistant,
					Content: FailureText,
					Status:  llm.StatusFailed,
					Notice:  true,
				}
			}
			m.logger.Error("turn failed",
				"turn", t.ID,
				"error", streamErr,
			)
		}

		if msg != nil {
			m.upsertLocked(*msg)
		}
		t.state = state
		m.state = state
		if m.active == t {
			m.active = nil
		}

		m.logger.Debug("turn finished",
			"turn", t.ID,
			"state", state.String(),
		)
		return Update{TurnID: t.ID, State: state, Message: msg, Err: t.err}, true
	})
}

// cancelledLocked keeps streamed content, or substitutes the notice when
// nothing arrived.
func (m *Manager) cancelledLocked(t *Turn, asm *assembler.Assembler) *llm.Message {
	msg := llm.Message{
		ID:     t.ID,
		Role:   llm.RoleAssistant,
		Status: llm.StatusCancelled,
	}
	if t.inserted {
		snap := asm.Finalize()
		msg.Content = snap.Content
		msg.Metrics = snap.Metrics.Clone()
	}
	if msg.Content == "" {
		msg.Content = CancelledNotice
		msg.Notice = true
	}
	return &msg
}

// contextLocked builds the messages sent upstream. Substituted and empty
// messages are never part of the model context.
func (m *Manager) contextLocked(systemPrompt string) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(m.history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, llm.ChatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, msg := range m.history {
		if msg.Notice || msg.Content == "" {
			continue
		}
		out = append(out, llm.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// appendLocked and upsertLocked never write into a slice that was handed out.

func (m *Manager) appendLocked(msg llm.Message) {
	m.index[msg.ID] = len(m.history)
	m.history = append(slices.Clip(m.history), msg)
}

func (m *Manager) upsertLocked(msg llm.Message) {
	i, ok := m.index[msg.ID]
	if !ok {
		m.appendLocked(msg)
		return
	}
	next := slices.Clone(m.history)
	next[i] = msg
	m.history = next
}

// mutate runs fn under the manager lock and delivers the update it returns.
// fn returns false to skip delivery.
func (m *Manager) mutate(fn func() (Update, bool)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	u, ok := fn()
	if !ok {
		m.mu.Unlock()
		return
	}
	u.History = m.history
	if u.Message != nil {
		msg := u.Message.Clone()
		u.Message = &msg
	}
	subs := make([]func(Update), 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub(u)
	}
}
