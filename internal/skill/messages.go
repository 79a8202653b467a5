package skill

import (
	"encoding/json"
	"fmt"
)

// Hermes dialogue messages.

// IntentMessage is the part of a recognised intent the skill reads.
// Topic: hermes/intent/{prefix}:{IntentName}
type IntentMessage struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId"`

	// Slots holds the extracted slot values, see ExtractSlots.
	Slots map[string]any `json:"-"`
}

// ParseIntent decodes an intent payload. Slot errors are returned alongside
// a usable message with empty slots; a payload without session or site is
// rejected.
func ParseIntent(payload []byte) (IntentMessage, error) {
	var msg IntentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrMalformedIntent, err)
	}
	if msg.SessionID == "" || msg.SiteID == "" {
		return msg, fmt.Errorf("%w: sessionId and siteId are required", ErrMalformedIntent)
	}

	slots, err := ExtractSlots(payload)
	msg.Slots = slots
	return msg, err
}

// EndSession closes a dialogue session, optionally speaking Text.
// Topic: hermes/dialogueManager/endSession
type EndSession struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text,omitempty"`
}

// StartSession opens a notification session that only speaks.
// Topic: hermes/dialogueManager/startSession
type StartSession struct {
	SiteID string      `json:"siteId,omitempty"`
	Init   SessionInit `json:"init"`
}

// SessionInit describes how a started session behaves.
type SessionInit struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// sessionTypeNotification is the only session type the skill starts.
const sessionTypeNotification = "notification"

// InjectionRequest adds entity values to the ASR vocabulary.
// Topic: hermes/injection/perform
type InjectionRequest struct {
	ID         string               `json:"id"`
	Operations []InjectionOperation `json:"operations"`
}

// InjectionOperation is one injection step. On the wire it is a two
// element array: ["add", {"audio_devices": ["box", "sony"]}].
type InjectionOperation struct {
	Kind   string
	Values map[string][]string
}

// injectionAdd is the operation kind used for discovered devices.
const injectionAdd = "add"

// MarshalJSON encodes the operation as a [kind, values] tuple.
func (o InjectionOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{o.Kind, o.Values})
}

// UnmarshalJSON decodes a [kind, values] tuple.
func (o *InjectionOperation) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("injection operation: want 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &o.Kind); err != nil {
		return fmt.Errorf("injection operation kind: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &o.Values); err != nil {
		return fmt.Errorf("injection operation values: %w", err)
	}
	return nil
}

// InjectionComplete reports a finished injection.
// Topic: hermes/injection/complete
type InjectionComplete struct {
	RequestID string `json:"requestId"`
}
