// Package schema decodes and validates inbound subscriber messages.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"live-transcription-service/internal/models"
)

// Errors returned for messages the gateway must ignore.
var (
	ErrMalformedMessage  = errors.New("malformed subscriber message")
	ErrIncompleteMessage = errors.New("incomplete subscriber message")
)

// Validator checks inbound messages against the join protocol.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Decode parses raw bytes into an InboundMessage. A message is accepted only
// when topic and event are non-empty and payload is a non-empty object.
func (v *Validator) Decode(data []byte) (*models.InboundMessage, error) {
	var msg models.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := v.Validate(msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks the required fields of an already decoded message.
func (v *Validator) Validate(msg models.InboundMessage) error {
	switch {
	case msg.Topic == "":
		return fmt.Errorf("%w: missing topic", ErrIncompleteMessage)
	case msg.Event == "":
		return fmt.Errorf("%w: missing event", ErrIncompleteMessage)
	case len(msg.Payload) == 0:
		return fmt.Errorf("%w: empty payload", ErrIncompleteMessage)
	}
	return nil
}

// JoinPayload extracts the identifying fields of a join event. Missing or
// non-string fields are returned empty.
func (v *Validator) JoinPayload(msg models.InboundMessage) models.JoinPayload {
	str := func(key string) string {
		s, _ := msg.Payload[key].(string)
		return s
	}
	return models.JoinPayload{
		DomainAssistantID: str("domain_assistant_id"),
		Locale:            str("locale"),
	}
}
