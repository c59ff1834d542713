package proto

import (
	"encoding/json"
	"fmt"
)

// NewEvent wraps payload into an event envelope.
func NewEvent(event string, payload any) (*Outbound, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return &Outbound{Type: OutboundTypeEvent, Event: event, Data: data}, nil
}

// NewError builds an error envelope.
func NewError(code, msg string) *Outbound {
	return &Outbound{Type: OutboundTypeError, Error: &Error{Code: code, Msg: msg}}
}

// NewInbound wraps payload into a client frame.
func NewInbound(typ string, payload any) (*Inbound, error) {
	if payload == nil {
		return &Inbound{Type: typ}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return &Inbound{Type: typ, Data: data}, nil
}

// DecodeData unmarshals a raw payload. An empty payload leaves v untouched.
func DecodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
