package agent

import "encoding/json"

type EventType string

const (
	EventTextDelta  EventType = "text_delta"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
	EventDone       EventType = "done"
)

// ErrorCode classifies the error event that ends a turn.
type ErrorCode string

const (
	CodeModelTransport    ErrorCode = "MODEL_TRANSPORT_ERROR"
	CodeMaxRoundsExceeded ErrorCode = "MAX_ROUNDS_EXCEEDED"
	CodeTurnTimeout       ErrorCode = "TURN_TIMEOUT"
	CodeCancelled         ErrorCode = "CANCELLED"
)

// Event is one element of a turn's event stream. Exactly one done or error event ends a turn.
//
// Arguments holds the decoded call arguments, or a JSON string when they could not be parsed.
// Output holds the serialized tool outcome.
type Event struct {
	Type      EventType       `json:"type"`
	Delta     string          `json:"delta,omitempty"`
	Name      string          `json:"name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Message   string          `json:"message,omitempty"`
	Code      ErrorCode       `json:"code,omitempty"`
	TurnID    string          `json:"turn_id,omitempty"`
}

func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
