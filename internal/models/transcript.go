// Package models defines the data structures for transcription events and the
// subscriber wire protocol.
package models

// TranscriptionEvent is one recognized fragment produced by the session manager.
// Interim events (IsFinal=false) supersede each other; a final event ends an
// utterance segment. Values are passed by copy and never mutated.
type TranscriptionEvent struct {
	Text         string `json:"text"`
	IsFinal      bool   `json:"isFinal"`
	TimestampMs  int64  `json:"timestampMs"`
	ConnectionID string `json:"connectionId,omitempty"`
}

// Kind returns "final" or "partial".
func (e TranscriptionEvent) Kind() string {
	if e.IsFinal {
		return "final"
	}
	return "partial"
}

// Join event names. "phx_join" is what Phoenix channel clients send.
const (
	EventJoin    = "join"
	EventPhxJoin = "phx_join"
)

// StatusConnected is the status reported back to a subscriber after a join.
const StatusConnected = "connected"

// InboundMessage is a message sent by a subscriber.
type InboundMessage struct {
	Topic   string         `json:"topic"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

// IsJoin reports whether the message asks to join the transcript broadcast.
func (m InboundMessage) IsJoin() bool {
	return m.Event == EventJoin || m.Event == EventPhxJoin
}

// JoinPayload carries the identifying fields of a join event.
type JoinPayload struct {
	DomainAssistantID string `json:"domain_assistant_id"`
	Locale            string `json:"locale"`
}

// StatusReply acknowledges a join.
type StatusReply struct {
	Status string `json:"status"`
}

// BroadcastMessage is the framing of a transcription event on the subscriber wire.
type BroadcastMessage struct {
	Message string `json:"message"`
	IsFinal bool   `json:"is_final"`
}

// NewBroadcastMessage converts an event to its wire form.
func NewBroadcastMessage(ev TranscriptionEvent) BroadcastMessage {
	return BroadcastMessage{Message: ev.Text, IsFinal: ev.IsFinal}
}
