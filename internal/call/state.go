// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package call

import (
	"time"

	"github.com/tomtom215/spacezone-realtime/internal/models"
)

// State is the call state.
type State int

const (
	StateIdle State = iota
	StateCalling
	StateRinging
	StateConnecting
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Active reports whether media or signaling may be live in this state.
func (s State) Active() bool {
	return s != StateIdle && s != StateEnded
}

// Direction tells who placed the call.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionOutgoing
	DirectionIncoming
)

func (d Direction) String() string {
	switch d {
	case DirectionOutgoing:
		return "outgoing"
	case DirectionIncoming:
		return "incoming"
	default:
		return "none"
	}
}

// EndReason tells why a call ended.
type EndReason string

const (
	EndNone              EndReason = ""
	EndLocalHangup       EndReason = "local_hangup"
	EndLocalDecline      EndReason = "local_decline"
	EndRemoteHangup      EndReason = "remote_hangup"
	EndRemoteDecline     EndReason = "remote_decline"
	EndRemoteBusy        EndReason = "busy"
	EndRemoteError       EndReason = "remote_error"
	EndConnectionFailed  EndReason = "connection_failed"
	EndNegotiationFailed EndReason = "negotiation_failed"
	EndMediaUnavailable  EndReason = "media_unavailable"
)

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	State     State
	CallID    string
	Type      models.CallType
	Direction Direction
	PeerID    string

	AudioEnabled bool
	VideoEnabled bool

	StartedAt   time.Time
	ConnectedAt time.Time

	// EndReason is set in StateEnded, and in StateIdle for the last call.
	EndReason EndReason
}
