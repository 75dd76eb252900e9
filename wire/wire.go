// Package wire implements the relay's framing: every message is a
// JSON-encoded 5-element array [join_ref, ref, topic, event, payload].
// Both sides of the bridge speak this format — single source of truth.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names carried in the fourth slot of an envelope.
const (
	EventJoin          = "phx_join"
	EventReply         = "phx_reply"
	EventError         = "phx_error"
	EventClose         = "phx_close"
	EventHeartbeat     = "heartbeat"
	EventUpdateText    = "update_text"
	EventConfirmSend   = "confirm_send"
	EventDeviceOnline  = "device_online"
	EventRemoteCommand = "remote_command"
)

// Remote command actions. Fixed vocabulary shared with the sender app.
const (
	ActionInsert     = "INSERT"
	ActionInterim    = "INTERIM"
	ActionNewline    = "NEWLINE"
	ActionClear      = "CLEAR"
	ActionSubmit     = "SUBMIT"
	ActionLog        = "LOG"
	ActionOpenEditor = "OPEN_EDITOR"
)

// HeartbeatTopic is the reserved topic heartbeats are sent on.
const HeartbeatTopic = "phoenix"

// JoinRef is the fixed join reference for the bridge's single channel join.
const JoinRef = "1"

// MaxFrameSize is the hard limit on a single inbound frame.
const MaxFrameSize = 64 * 1024

var (
	ErrMalformed     = errors.New("wire: malformed frame")
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")
)

// Payload is the fifth envelope slot. The relay multiplexes several
// message shapes through it, so this is the superset: replies carry
// status/response, dictation frames carry ciphertext/iv/key_hint,
// control frames carry text/action, presence carries sender_tab_id.
type Payload struct {
	Status     string          `json:"status,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Ciphertext string          `json:"ciphertext,omitempty"`
	IV         string          `json:"iv,omitempty"`
	KeyHint    string          `json:"key_hint,omitempty"`
	Text       string          `json:"text,omitempty"`
	Action     string          `json:"action,omitempty"`
	SenderID   string          `json:"sender_tab_id,omitempty"`
}

// HasCipher reports whether the payload carries encrypted content.
func (p Payload) HasCipher() bool {
	return p.Ciphertext != "" && p.IV != ""
}

// ReplyReason extracts the failure reason from a phx_reply error payload.
// The relay sends either a bare string or an object with a "reason" field.
func (p Payload) ReplyReason() string {
	if len(p.Response) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Response, &s); err == nil {
		return s
	}
	var obj struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(p.Response, &obj); err == nil && obj.Reason != "" {
		return obj.Reason
	}
	return string(p.Response)
}

// Envelope is one relay frame. JoinRef identifies the logical join
// transaction; Ref is the per-message correlation id. Empty strings
// encode as JSON null, matching the relay's serializer.
type Envelope struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload Payload
}

// MarshalJSON encodes the envelope as the 5-element array form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	refOrNull := func(s string) any {
		if s == "" {
			return nil
		}
		return s
	}
	return json.Marshal([]any{
		refOrNull(e.JoinRef),
		refOrNull(e.Ref),
		e.Topic,
		e.Event,
		e.Payload,
	})
}

// UnmarshalJSON decodes the 5-element array form.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parts) != 5 {
		return fmt.Errorf("%w: got %d elements, want 5", ErrMalformed, len(parts))
	}
	if err := unmarshalRef(parts[0], &e.JoinRef); err != nil {
		return err
	}
	if err := unmarshalRef(parts[1], &e.Ref); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[2], &e.Topic); err != nil {
		return fmt.Errorf("%w: topic: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(parts[3], &e.Event); err != nil {
		return fmt.Errorf("%w: event: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(parts[4], &e.Payload); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	return nil
}

func unmarshalRef(raw json.RawMessage, dst *string) error {
	if string(raw) == "null" {
		*dst = ""
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: ref: %v", ErrMalformed, err)
	}
	return nil
}

// Encode serialises an envelope into wire bytes.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses wire bytes into an envelope.
func Decode(data []byte) (Envelope, error) {
	if len(data) > MaxFrameSize {
		return Envelope{}, ErrFrameTooLarge
	}
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// Join builds the channel join frame for a topic. Join uses the fixed
// join reference in both ref slots.
func Join(topic string) Envelope {
	return Envelope{JoinRef: JoinRef, Ref: JoinRef, Topic: topic, Event: EventJoin}
}

// Heartbeat builds the transport keepalive frame.
func Heartbeat() Envelope {
	return Envelope{Ref: "heartbeat", Topic: HeartbeatTopic, Event: EventHeartbeat}
}

// Presence builds a device_online announcement on a topic.
func Presence(topic, ref, senderID string) Envelope {
	return Envelope{
		JoinRef: JoinRef,
		Ref:     ref,
		Topic:   topic,
		Event:   EventDeviceOnline,
		Payload: Payload{SenderID: senderID},
	}
}
