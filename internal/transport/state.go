// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package transport

import "time"

// State is the connection state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChange is delivered to OnStateChange listeners.
type StateChange struct {
	From State
	To   State

	// Err is set for StateFailed and for StateReconnecting after a drop.
	Err error

	// Reconnected is true when StateConnected follows a lost connection.
	Reconnected bool
}

// Policy is the reconnect backoff schedule.
type Policy struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int
}

// DefaultPolicy is 1s doubling to 5s, five attempts.
var DefaultPolicy = Policy{Initial: time.Second, Max: 5 * time.Second, Attempts: 5}

// Delay returns the wait before attempt n (1-based).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.Initial
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}
