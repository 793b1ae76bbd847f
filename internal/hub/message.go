package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"voxstream/internal/transcribe"
)

// MessageType names the five self-delimited frame kinds the hub exchanges
// with subscribers (SPEC_FULL.md §4.6, §6).
type MessageType string

const (
	MessageHello   MessageType = "hello"
	MessageHistory MessageType = "history"
	MessageEvent   MessageType = "event"
	MessageStatus  MessageType = "status"
	MessageBye     MessageType = "bye"
)

// ByeReason names why the hub disconnected a subscriber.
type ByeReason string

const (
	ByeShutdown    ByeReason = "shutdown"
	ByeIdleTimeout ByeReason = "idle_timeout"
	ByeSlowClient  ByeReason = "slow_client"
)

// Hello is the payload of the hello message sent immediately on accept.
type Hello struct {
	SessionID   string
	StartedAt   time.Time
	PrivacyMode string
}

// StatusPayload reports a subscriber-count change.
type StatusPayload struct {
	Connected   bool
	Subscribers int
}

// Envelope is the single shape every frame the hub sends is built from. Only
// the field matching Type is populated. MarshalJSON renders it on the wire
// the way §6 specifies: fields inline at the top level, keyed by "type",
// rather than nested under a key named after the message type.
type Envelope struct {
	Type    MessageType
	Hello   *Hello
	History []transcribe.Event
	Event   *transcribe.Event
	Status  *StatusPayload
	Reason  ByeReason
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case MessageHello:
		if e.Hello == nil {
			return nil, fmt.Errorf("hub: hello envelope missing payload")
		}
		return json.Marshal(struct {
			Type        MessageType `json:"type"`
			SessionID   string      `json:"session_id"`
			StartedAt   time.Time   `json:"started_at"`
			PrivacyMode string      `json:"privacy_mode"`
		}{e.Type, e.Hello.SessionID, e.Hello.StartedAt, e.Hello.PrivacyMode})

	case MessageHistory:
		events := e.History
		if events == nil {
			events = []transcribe.Event{}
		}
		return json.Marshal(struct {
			Type   MessageType        `json:"type"`
			Events []transcribe.Event `json:"events"`
		}{e.Type, events})

	case MessageEvent:
		if e.Event == nil {
			return nil, fmt.Errorf("hub: event envelope missing payload")
		}
		// TranscriptionEvent fields are carried inline alongside "type"
		// rather than nested, so marshal the event on its own, then merge
		// "type" into the resulting object.
		b, err := json.Marshal(*e.Event)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, err
		}
		typeBytes, err := json.Marshal(e.Type)
		if err != nil {
			return nil, err
		}
		fields["type"] = typeBytes
		return json.Marshal(fields)

	case MessageStatus:
		if e.Status == nil {
			return nil, fmt.Errorf("hub: status envelope missing payload")
		}
		return json.Marshal(struct {
			Type        MessageType `json:"type"`
			Connected   bool        `json:"connected"`
			Subscribers int         `json:"subscribers"`
		}{e.Type, e.Status.Connected, e.Status.Subscribers})

	case MessageBye:
		return json.Marshal(struct {
			Type   MessageType `json:"type"`
			Reason ByeReason   `json:"reason"`
		}{e.Type, e.Reason})

	default:
		return nil, fmt.Errorf("hub: unknown envelope type %q", e.Type)
	}
}

// UnmarshalJSON is MarshalJSON's inverse, used by tests and any internal
// consumer that needs to decode a wire frame back into an Envelope.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.Type = head.Type

	switch head.Type {
	case MessageHello:
		var v struct {
			SessionID   string    `json:"session_id"`
			StartedAt   time.Time `json:"started_at"`
			PrivacyMode string    `json:"privacy_mode"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		e.Hello = &Hello{SessionID: v.SessionID, StartedAt: v.StartedAt, PrivacyMode: v.PrivacyMode}

	case MessageHistory:
		var v struct {
			Events []transcribe.Event `json:"events"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		e.History = v.Events

	case MessageEvent:
		var ev transcribe.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		e.Event = &ev

	case MessageStatus:
		var v struct {
			Connected   bool `json:"connected"`
			Subscribers int  `json:"subscribers"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		e.Status = &StatusPayload{Connected: v.Connected, Subscribers: v.Subscribers}

	case MessageBye:
		var v struct {
			Reason ByeReason `json:"reason"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		e.Reason = v.Reason

	default:
		return fmt.Errorf("hub: unknown envelope type %q", head.Type)
	}
	return nil
}
