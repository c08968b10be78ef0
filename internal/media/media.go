// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

// Package media models local capture devices: acquiring a camera and
// microphone stream, toggling tracks, and releasing them.
package media

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Constraints selects the devices to acquire.
type Constraints struct {
	Audio bool
	Video bool
}

// ConstraintsFor returns the constraints of a call: video calls capture
// camera and microphone, audio calls the microphone only.
func ConstraintsFor(video bool) Constraints {
	return Constraints{Audio: true, Video: video}
}

// Track is one captured track. Stop is idempotent.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	Stopped() bool
}

// Stream is a set of tracks acquired together.
type Stream interface {
	ID() string
	Tracks() []Track
}

// Devices acquires local media.
type Devices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

var (
	// ErrPermissionDenied means the user or platform refused capture.
	ErrPermissionDenied = errors.New("media: permission denied")

	// ErrDeviceNotFound means no device matches the constraints.
	ErrDeviceNotFound = errors.New("media: device not found")
)

// Error describes an acquisition failure for one device kind.
type Error struct {
	Reason error // ErrPermissionDenied or ErrDeviceNotFound
	Device Kind
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v (%s): %v", e.Reason, e.Device, e.Err)
	}
	return fmt.Sprintf("%v (%s)", e.Reason, e.Device)
}

// Is matches the failure kind.
func (e *Error) Is(target error) bool { return target == e.Reason }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// StopAll stops every track of s and returns how many were running.
func StopAll(s Stream) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Tracks() {
		if !t.Stopped() {
			n++
		}
		t.Stop()
	}
	return n
}

// SetKindEnabled toggles every track of kind k in s and reports whether
// any track of that kind exists.
func SetKindEnabled(s Stream, k Kind, enabled bool) bool {
	if s == nil {
		return false
	}
	found := false
	for _, t := range s.Tracks() {
		if t.Kind() == k {
			t.SetEnabled(enabled)
			found = true
		}
	}
	return found
}
