package sse

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/veneer/pkg/llm"
)

// chunkPayload is the JSON carried by each data line.
type chunkPayload struct {
	Choices []llm.Choice `json:"choices"`
	Usage   *llm.Usage   `json:"usage"`
}

// ParsePayload maps one event payload onto a StreamEvent. Only the first
// choice is considered: delta.content becomes Delta and message.content
// becomes Full.
func ParsePayload(data []byte) (llm.StreamEvent, error) {
	var p chunkPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return llm.StreamEvent{}, fmt.Errorf("decoding event payload: %w", err)
	}

	var ev llm.StreamEvent
	if !p.Usage.Empty() {
		ev.Usage = p.Usage
	}

	if len(p.Choices) > 0 {
		c := p.Choices[0]
		if c.Delta != nil && c.Delta.Content != nil {
			ev.Delta = c.Delta.Content
		}
		if c.Message != nil && c.Message.Content != nil {
			ev.Full = c.Message.Content
		}
	}

	return ev, nil
}
