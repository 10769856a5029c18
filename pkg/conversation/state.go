package conversation

// State is the lifecycle position of a turn. The manager reports the state of
// its most recent turn, or Idle when there is none.
type State int

const (
	Idle State = iota
	UserSubmitted
	AwaitingFirstByte
	Streaming
	Finalized
	Cancelled
	Failed
)

var stateNames = [...]string{
	Idle:              "idle",
	UserSubmitted:     "user_submitted",
	AwaitingFirstByte: "awaiting_first_byte",
	Streaming:         "streaming",
	Finalized:         "finalized",
	Cancelled:         "cancelled",
	Failed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no stream can be active in state s.
func (s State) Terminal() bool {
	switch s {
	case Idle, Finalized, Cancelled, Failed:
		return true
	default:
		return false
	}
}
