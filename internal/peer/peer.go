// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

// Package peer abstracts the WebRTC peer connection used by a call and
// provides the pion implementation.
package peer

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/spacezone-realtime/internal/media"
)

// SessionDescription is an SDP offer or answer as carried on the wire.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is one trickled candidate as carried on the wire.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// State is the aggregate connection state of a peer connection.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a new peer connection.
type Config struct {
	ICEServers []string
}

// Conn is one peer-to-peer media session. Close is idempotent.
type Conn interface {
	AddStream(s media.Stream) error
	CreateOffer(ctx context.Context) (SessionDescription, error)
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	SetLocalDescription(d SessionDescription) error
	SetRemoteDescription(d SessionDescription) error
	AddICECandidate(c ICECandidate) error

	// OnICECandidate receives local candidates; end-of-gathering is not reported.
	OnICECandidate(fn func(ICECandidate))
	OnStateChange(fn func(State))
	Close() error
}

// Factory creates peer connections.
type Factory interface {
	NewPeer(cfg Config) (Conn, error)
}

// ErrMalformedDescription is returned for unusable remote descriptions.
var ErrMalformedDescription = errors.New("peer: malformed session description")

// DecodeDescription parses and sanity-checks a wire description.
func DecodeDescription(raw json.RawMessage) (SessionDescription, error) {
	var d SessionDescription
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	switch d.Type {
	case "offer", "answer", "pranswer":
	default:
		return d, fmt.Errorf("%w: type %q", ErrMalformedDescription, d.Type)
	}
	if d.SDP == "" {
		return d, fmt.Errorf("%w: empty sdp", ErrMalformedDescription)
	}
	return d, nil
}

// DecodeCandidate parses a wire candidate.
func DecodeCandidate(raw json.RawMessage) (ICECandidate, error) {
	var c ICECandidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("peer: malformed candidate: %w", err)
	}
	return c, nil
}
