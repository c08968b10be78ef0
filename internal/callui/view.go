// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

// Package callui maps call engine state to the surface a client shows.
package callui

import "github.com/tomtom215/spacezone-realtime/internal/call"

// Presentation is the call surface to display.
type Presentation int

const (
	None Presentation = iota
	OutgoingModal
	IncomingModal
	CallWindow
)

func (p Presentation) String() string {
	switch p {
	case OutgoingModal:
		return "outgoing_modal"
	case IncomingModal:
		return "incoming_modal"
	case CallWindow:
		return "call_window"
	default:
		return "none"
	}
}

// View returns the surface for s. A modal needs the matching direction:
// calling and outgoing, or ringing and incoming. Ended maps to None; the
// snapshot keeps the end reason for a transient notice.
func View(s call.Snapshot) Presentation {
	switch {
	case s.State == call.StateCalling && s.Direction == call.DirectionOutgoing:
		return OutgoingModal
	case s.State == call.StateRinging && s.Direction == call.DirectionIncoming:
		return IncomingModal
	case s.State == call.StateConnecting, s.State == call.StateConnected:
		return CallWindow
	default:
		return None
	}
}
