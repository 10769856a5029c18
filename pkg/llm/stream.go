package llm

// StreamEvent is one decoded record of a chat stream.
type StreamEvent struct {
	// Delta is an incremental text fragment to append.
	Delta *string

	// Full replaces the accumulated text outright.
	Full *string

	// Usage carries authoritative token counts when the upstream reports them.
	Usage *Usage

	// Done marks the end-of-stream sentinel.
	Done bool
}

// Empty reports whether the event carries nothing to apply.
func (e StreamEvent) Empty() bool {
	return e.Delta == nil && e.Full == nil && e.Usage.Empty() && !e.Done
}

// EventFromCompletion converts a non-streaming response into the equivalent
// full-content event.
func EventFromCompletion(c *ChatCompletion) StreamEvent {
	ev := StreamEvent{Usage: c.Usage}
	if len(c.Choices) > 0 && c.Choices[0].Message != nil && c.Choices[0].Message.Content != nil {
		ev.Full = clonePtr(c.Choices[0].Message.Content)
	} else {
		ev.Full = Ptr("")
	}
	return ev
}
