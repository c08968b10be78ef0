// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package transport

import (
	"fmt"

	"github.com/goccy/go-json"
)

// AckEvent is the event name of acknowledgement frames.
const AckEvent = "ack"

// Envelope is one websocket frame. ID is non-zero on frames expecting an
// acknowledgement and on the acknowledgement itself.
type Envelope struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// EncodePayload marshals payload, passing raw JSON through unchanged.
func EncodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return b, nil
	}
}

// NewEnvelope builds a frame for event with payload.
func NewEnvelope(event string, id uint64, payload any) (*Envelope, error) {
	data, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, ID: id, Data: data}, nil
}

// DecodeEnvelope parses one frame.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event name")
	}
	return &env, nil
}
