package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/veneer/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnRecorded is emitted after the proxy records a chat turn.
	EventTypeTurnRecorded = "veneer.turn.recorded"
)

// TurnRecordedEvent is a transport-neutral event payload for a recorded turn.
type TurnRecordedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Source        EventSource     `json:"source"`
	RequestMeta   TurnRequestMeta `json:"request_meta"`
	Turn          storage.Turn    `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Provider string `json:"provider"`
	Upstream string `json:"upstream,omitempty"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	HTTPStatus  int       `json:"http_status"`
}

// NewTurnRecordedEvent builds the event for turn, emitted now.
func NewTurnRecordedEvent(turn storage.Turn, source EventSource, path string, now time.Time) *TurnRecordedEvent {
	return &TurnRecordedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnRecorded,
		EventID:       uuid.NewString(),
		EmittedAt:     now,
		Source:        source,
		RequestMeta: TurnRequestMeta{
			Path:        path,
			StartedAt:   turn.CreatedAt,
			CompletedAt: turn.CreatedAt.Add(turn.Duration),
			DurationMs:  turn.Duration.Milliseconds(),
			Streaming:   turn.Stream,
			HTTPStatus:  turn.StatusCode,
		},
		Turn: turn,
	}
}
