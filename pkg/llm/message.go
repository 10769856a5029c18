// Package llm holds the wire and transcript types shared by the client core and
// the proxy.
package llm

import "time"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageStatus tracks the lifecycle of an assistant message.
// User messages carry an empty status.
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusComplete  MessageStatus = "complete"
	StatusCancelled MessageStatus = "cancelled"
	StatusFailed    MessageStatus = "failed"
)

// Message is a single entry of the conversation transcript.
type Message struct {
	ID      string        `json:"id"`
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Metrics *Metrics      `json:"metrics,omitempty"`
	Status  MessageStatus `json:"status,omitempty"`

	// Notice is set when Content was substituted by the client (cancellation
	// notice, failure fallback) instead of being produced by the model.
	Notice bool `json:"notice,omitempty"`
}

// Metrics are the derived throughput and cost figures for an assistant message.
// Nil fields are unknown, which is distinct from zero.
type Metrics struct {
	TokensPerSecond *float64       `json:"tokens_per_second,omitempty"`
	TotalTokens     *int           `json:"total_tokens,omitempty"`
	InputTokens     *int           `json:"input_tokens,omitempty"`
	OutputTokens    *int           `json:"output_tokens,omitempty"`
	Cost            *float64       `json:"cost,omitempty"`
	ResponseTime    *time.Duration `json:"response_time,omitempty"`
}

// Clone returns a deep copy of the metrics.
func (m *Metrics) Clone() *Metrics {
	if m == nil {
		return nil
	}
	return &Metrics{
		TokensPerSecond: clonePtr(m.TokensPerSecond),
		TotalTokens:     clonePtr(m.TotalTokens),
		InputTokens:     clonePtr(m.InputTokens),
		OutputTokens:    clonePtr(m.OutputTokens),
		Cost:            clonePtr(m.Cost),
		ResponseTime:    clonePtr(m.ResponseTime),
	}
}

// Clone returns a copy of the message that shares no pointers with m.
func (m Message) Clone() Message {
	m.Metrics = m.Metrics.Clone()
	return m
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
