// Package progress defines the lifecycle events of a long-running listing
// and the sinks that deliver them to a subscriber.
//
// A stream carries zero or more status and progress events followed by
// exactly one terminal event, either complete or error. Producers emit
// through a Sink and never see the wire encoding; SSEWriter and
// JSONLinesWriter encode frames for HTTP and CLI subscribers.
package progress

import (
	"encoding/json"
)

// Type discriminates event frames on the wire.
type Type string

const (
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeError    Type = "error"
	TypeComplete Type = "complete"
)

// DefaultPayloadKey names the complete payload when the producer sets none.
const DefaultPayloadKey = "payload"

// Event is one progress frame. Only the fields of its Type are encoded.
type Event struct {
	Type    Type
	Message string

	Current int
	Total   int
	Percent int

	// PayloadKey is the JSON field carrying Payload on complete events.
	PayloadKey string
	Payload    any
}

// Status reports a phase change.
func Status(message string) Event {
	return Event{Type: TypeStatus, Message: message}
}

// Progress reports current of total items done. Percent is rounded down.
func Progress(current, total int) Event {
	percent := 0
	if total > 0 {
		percent = current * 100 / total
	}
	return Event{Type: TypeProgress, Current: current, Total: total, Percent: percent}
}

// Error ends a stream with a failure message.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// Complete ends a stream with its result, encoded under key.
func Complete(key string, payload any) Event {
	if key == "" {
		key = DefaultPayloadKey
	}
	return Event{Type: TypeComplete, PayloadKey: key, Payload: payload}
}

// Terminal reports whether e ends a stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// MarshalJSON encodes the frame with its type discriminator.
func (e Event) MarshalJSON() ([]byte, error) {
	frame := map[string]any{"type": e.Type}

	switch e.Type {
	case TypeStatus, TypeError:
		frame["message"] = e.Message
	case TypeProgress:
		frame["current"] = e.Current
		frame["total"] = e.Total
		frame["percent"] = e.Percent
	case TypeComplete:
		key := e.PayloadKey
		if key == "" {
			key = DefaultPayloadKey
		}
		frame[key] = e.Payload
	}

	return json.Marshal(frame)
}
