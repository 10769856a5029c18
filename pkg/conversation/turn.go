package conversation

import "context"

// Turn is the handle of one in-flight request: a user message and the
// assistant response streamed for it.
type Turn struct {
	// ID is the id of the assistant message this turn writes.
	ID string

	// UserMessageID is the id of the user message that started the turn.
	UserMessageID string

	m      *Manager
	cancel context.CancelFunc
	done   chan struct{}

	// Guarded by m.mu.
	state    State
	err      error
	inserted bool
	finished bool
}

// Done is closed once the turn reaches a terminal state.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn finishes and returns its terminal state.
func (t *Turn) Wait() State {
	<-t.done
	return t.State()
}

// State returns the current state of the turn.
func (t *Turn) State() State {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.state
}

// Err returns the failure of a Failed turn, nil otherwise.
func (t *Turn) Err() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.err
}

// Cancel aborts the turn. It returns immediately; use Wait to observe the
// Cancelled state. Cancelling a finished turn does nothing.
func (t *Turn) Cancel() {
	t.cancel()
}
