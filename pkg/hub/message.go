// Package hub is a channel-based websocket broadcast hub. The station
// uses one hub to fan out status updates and capture reports to every
// connected operator console.
package hub

import "encoding/json"

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded event.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data.
	BinaryMessage
)

// Message is one payload to fan out to clients.
type Message struct {
	Type MessageType
	Data []byte
}

// Event is the JSON envelope for everything the station broadcasts:
// capture reports, storage status changes, settings updates.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// NewJSONMessage wraps pre-encoded JSON bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// NewEventMessage encodes an Event envelope.
func NewEventMessage(eventType string, payload any) (Message, error) {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
