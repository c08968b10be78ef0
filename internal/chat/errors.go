// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package chat

import "errors"

var (
	// ErrUnknownConversation is returned for conversations not in the cache.
	ErrUnknownConversation = errors.New("chat: unknown conversation")

	// ErrNotFriends is returned when the friendship status forbids sending.
	ErrNotFriends = errors.New("chat: conversation does not permit sending")

	// ErrEmptyMessage is returned for blank content.
	ErrEmptyMessage = errors.New("chat: message is empty")

	// ErrInvalidMessage is returned for content or types the server would refuse.
	ErrInvalidMessage = errors.New("chat: invalid message")

	// ErrCreateInFlight is returned while a create for the same participant runs.
	ErrCreateInFlight = errors.New("chat: conversation creation already in progress")

	// ErrUnknownMessage is returned for message ids not in the thread.
	ErrUnknownMessage = errors.New("chat: unknown message")

	// ErrNotFailed is returned when retrying or discarding a message that
	// is not in the failed state.
	ErrNotFailed = errors.New("chat: message is not failed")

	// ErrRejected is returned when the server refused the message.
	ErrRejected = errors.New("chat: message rejected")
)
