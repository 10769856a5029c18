// Package assembler folds decoded stream events into the running assistant
// message and derives its live metrics.
package assembler

import (
	"strings"
	"time"

	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/metering"
)

// Snapshot is the assembled state of one assistant message.
type Snapshot struct {
	MessageID string
	Content   string
	Metrics   llm.Metrics
	Final     bool
}

// Message returns the snapshot as a transcript message with the given status.
func (s Snapshot) Message(status llm.MessageStatus) llm.Message {
	return llm.Message{
		ID:      s.MessageID,
		Role:    llm.RoleAssistant,
		Content: s.Content,
		Metrics: s.Metrics.Clone(),
		Status:  status,
	}
}

// Sink receives every snapshot, in order.
type Sink func(Snapshot)

// Options configures an Assembler.
type Options struct {
	// MessageID identifies the assistant message the snapshots update.
	MessageID string

	// Prompt is the conversation text sent upstream. It backs the input token
	// estimate until the upstream reports prompt_tokens.
	Prompt string

	// Price resolves cost. An unknown price leaves cost unset.
	Price metering.Price

	// Start is when the request was dispatched. Defaults to Clock().
	Start time.Time

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Sink is optional.
	Sink Sink
}

// Assembler accumulates one response. It is not safe for concurrent use: a
// single stream consumer owns it.
type Assembler struct {
	id     string
	price  metering.Price
	start  time.Time
	clock  func() time.Time
	sink   Sink
	prompt int

	content strings.Builder
	usage   llm.Usage
	final   *Snapshot
}

// New returns an Assembler for a single response.
func New(opts Options) *Assembler {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	start := opts.Start
	if start.IsZero() {
		start = clock()
	}

	return &Assembler{
		id:     opts.MessageID,
		price:  opts.Price,
		start:  start,
		clock:  clock,
		sink:   opts.Sink,
		prompt: metering.EstimateTokens(opts.Prompt),
	}
}

// Apply folds ev into the message and returns the resulting snapshot. ok is
// false when ev changed nothing (a bare Done event, or any event after
// Finalize). Usage is applied before content so the snapshot of an event
// carrying both already uses the authoritative counts.
func (a *Assembler) Apply(ev llm.StreamEvent) (Snapshot, bool) {
	if a.final != nil {
		return Snapshot{}, false
	}

	changed := false
	if !ev.Usage.Empty() {
		a.usage.Merge(ev.Usage)
		changed = true
	}
	if ev.Full != nil {
		a.content.Reset()
		a.content.WriteString(*ev.Full)
		changed = true
	}
	if ev.Delta != nil {
		a.content.WriteString(*ev.Delta)
		changed = true
	}

	if !changed {
		return Snapshot{}, false
	}

	snap := a.snapshot(false)
	if a.sink != nil {
		a.sink(snap)
	}
	return snap, true
}

// Finalize computes the final metrics once. Later calls return the same
// snapshot without pushing it to the sink again.
func (a *Assembler) Finalize() Snapshot {
	if a.final != nil {
		return *a.final
	}

	snap := a.snapshot(true)
	a.final = &snap
	if a.sink != nil {
		a.sink(snap)
	}
	return snap
}

// Finalized reports whether Finalize has run.
func (a *Assembler) Finalized() bool {
	return a.final != nil
}

// Content returns the text accumulated so far.
func (a *Assembler) Content() string {
	return a.content.String()
}

// Usage returns the authoritative counts received so far.
func (a *Assembler) Usage() llm.Usage {
	var u llm.Usage
	u.Merge(&a.usage)
	return u
}

func (a *Assembler) snapshot(final bool) Snapshot {
	content := a.content.String()

	elapsed := a.clock().Sub(a.start)
	if elapsed < 0 {
		elapsed = 0
	}

	// Each category is authoritative on its own once reported.
	output := metering.EstimateTokens(content)
	if a.usage.CompletionTokens != nil {
		output = *a.usage.CompletionTokens
	}
	input := a.prompt
	if a.usage.PromptTokens != nil {
		input = *a.usage.PromptTokens
	}
	total := input + output
	if a.usage.TotalTokens != nil {
		total = *a.usage.TotalTokens
	}

	m := llm.Metrics{
		TokensPerSecond: llm.Ptr(metering.Round(metering.TokensPerSecond(output, elapsed), 1)),
		TotalTokens:     llm.Ptr(total),
		InputTokens:     llm.Ptr(input),
		OutputTokens:    llm.Ptr(output),
		ResponseTime:    llm.Ptr(elapsed),
	}
	if cost, ok := metering.ComputeCost(input, output, a.price); ok {
		m.Cost = llm.Ptr(metering.Round(cost, 4))
	}

	return Snapshot{
		MessageID: a.id,
		Content:   content,
		Metrics:   m,
		Final:     final,
	}
}
