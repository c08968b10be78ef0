// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package call

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInCall is returned by StartCall while a session exists.
	ErrAlreadyInCall = errors.New("call: already in a call")

	// ErrBusy is returned by HandleIncoming when the offer was declined as busy.
	ErrBusy = errors.New("call: busy")

	// ErrInvalidState is returned when an operation does not apply to the
	// current state, such as accepting while not ringing.
	ErrInvalidState = errors.New("call: invalid state for operation")

	// ErrCallAborted is returned when the session ended while the
	// operation was waiting on media or negotiation.
	ErrCallAborted = errors.New("call: session ended during operation")

	// ErrNoActiveCall is returned by track toggles without local media.
	ErrNoActiveCall = errors.New("call: no active call")

	// ErrInvalidCallType is returned for call types other than audio and video.
	ErrInvalidCallType = errors.New("call: invalid call type")
)

// NegotiationError wraps a failed offer/answer step.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("call: negotiation failed at %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
