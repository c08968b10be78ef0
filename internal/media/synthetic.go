// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// PionTrack is implemented by tracks that can be attached to a pion peer
// connection.
type PionTrack interface {
	Track
	Local() webrtc.TrackLocal
}

// SyntheticDevices produces pion sample tracks instead of capturing real
// hardware. It serves headless clients and bots.
type SyntheticDevices struct {
	// HasMicrophone and HasCamera report which devices exist.
	HasMicrophone bool
	HasCamera     bool

	// Deny makes every acquisition fail with ErrPermissionDenied.
	Deny bool
}

// NewSyntheticDevices returns a device set with a microphone and camera.
func NewSyntheticDevices() *SyntheticDevices {
	return &SyntheticDevices{HasMicrophone: true, HasCamera: true}
}

// GetUserMedia implements Devices.
func (d *SyntheticDevices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Deny {
		dev := KindAudio
		if c.Video {
			dev = KindVideo
		}
		return nil, &Error{Reason: ErrPermissionDenied, Device: dev}
	}
	if c.Audio && !d.HasMicrophone {
		return nil, &Error{Reason: ErrDeviceNotFound, Device: KindAudio}
	}
	if c.Video && !d.HasCamera {
		return nil, &Error{Reason: ErrDeviceNotFound, Device: KindVideo}
	}

	streamID := "stream-" + uuid.NewString()[:8]
	s := &stream{id: streamID}
	if c.Audio {
		t, err := newSampleTrack(KindAudio, webrtc.MimeTypeOpus, streamID)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	if c.Video {
		t, err := newSampleTrack(KindVideo, webrtc.MimeTypeVP8, streamID)
		if err != nil {
			StopAll(s)
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	return s, nil
}

type stream struct {
	id     string
	tracks []Track
}

func (s *stream) ID() string      { return s.id }
func (s *stream) Tracks() []Track { return append([]Track(nil), s.tracks...) }

type sampleTrack struct {
	local *webrtc.TrackLocalStaticSample
	kind  Kind

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newSampleTrack(kind Kind, mime, streamID string) (*sampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		string(kind)+"-"+uuid.NewString()[:8],
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	return &sampleTrack{local: local, kind: kind, enabled: true}, nil
}

func (t *sampleTrack) ID() string               { return t.local.ID() }
func (t *sampleTrack) Kind() Kind               { return t.kind }
func (t *sampleTrack) Local() webrtc.TrackLocal { return t.local }

func (t *sampleTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && !t.stopped
}

func (t *sampleTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.enabled = enabled
	}
}

func (t *sampleTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.enabled = false
}

func (t *sampleTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
