// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned when no usable session credential exists.
	ErrAuthRequired = errors.New("transport: authentication required")

	// ErrCredentialExpired is returned when the bearer token has expired.
	ErrCredentialExpired = errors.New("transport: credential expired")

	// ErrNotConnected is returned by sends while no connection is open.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrSendTimeout is returned when an acknowledged send is not
	// acknowledged in time. The frame may still have been delivered.
	ErrSendTimeout = errors.New("transport: send timed out waiting for acknowledgement")

	// ErrClosed is returned to sends pending when Disconnect is called.
	ErrClosed = errors.New("transport: connection closed")

	// ErrReconnectExhausted is reported once every reconnect attempt failed.
	ErrReconnectExhausted = errors.New("transport: reconnect attempts exhausted")
)

// AuthError is returned when the server rejects the handshake credential.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("transport: handshake rejected with status %d", e.Status)
}

// Is makes errors.Is(err, ErrAuthRequired) hold for handshake rejections.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuthRequired
}

// AckError is an explicit rejection carried by an acknowledgement.
type AckError struct {
	Event   string
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("transport: %s rejected: %s", e.Event, e.Message)
}

// IsTimeout reports whether err means "no acknowledgement in time".
func IsTimeout(err error) bool {
	return errors.Is(err, ErrSendTimeout)
}

// IsRejected reports whether err is an explicit server rejection.
func IsRejected(err error) bool {
	var ae *AckError
	return errors.As(err, &ae)
}

// isFatal reports errors that stop reconnection.
func isFatal(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrCredentialExpired)
}
