// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package media

import (
	"context"
	"errors"
	"testing"
)

func TestSyntheticDevices_GetUserMedia(t *testing.T) {
	tests := []struct {
		name        string
		devices     SyntheticDevices
		constraints Constraints
		wantErr     error
		wantKinds   []Kind
	}{
		{"video call", SyntheticDevices{HasMicrophone: true, HasCamera: true}, ConstraintsFor(true), nil, []Kind{KindAudio, KindVideo}},
		{"audio call", SyntheticDevices{HasMicrophone: true, HasCamera: true}, ConstraintsFor(false), nil, []Kind{KindAudio}},
		{"no camera", SyntheticDevices{HasMicrophone: true}, ConstraintsFor(true), ErrDeviceNotFound, nil},
		{"no microphone", SyntheticDevices{HasCamera: true}, ConstraintsFor(false), ErrDeviceNotFound, nil},
		{"denied", SyntheticDevices{HasMicrophone: true, HasCamera: true, Deny: true}, ConstraintsFor(true), ErrPermissionDenied, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.devices.GetUserMedia(context.Background(), tt.constraints)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				var me *Error
				if !errors.As(err, &me) {
					t.Errorf("expected *media.Error, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tracks := s.Tracks()
			if len(tracks) != len(tt.wantKinds) {
				t.Fatalf("got %d tracks, want %d", len(tracks), len(tt.wantKinds))
			}
			for i, k := range tt.wantKinds {
				if tracks[i].Kind() != k {
					t.Errorf("track %d kind = %s, want %s", i, tracks[i].Kind(), k)
				}
				if _, ok := tracks[i].(PionTrack); !ok {
					t.Errorf("track %d is not attachable to a pion peer", i)
				}
			}
		})
	}
}

func TestStopAllCountsRunningTracksOnce(t *testing.T) {
	s, err := NewSyntheticDevices().GetUserMedia(context.Background(), ConstraintsFor(true))
	if err != nil {
		t.Fatal(err)
	}

	if n := StopAll(s); n != 2 {
		t.Errorf("first StopAll = %d, want 2", n)
	}
	if n := StopAll(s); n != 0 {
		t.Errorf("second StopAll = %d, want 0", n)
	}
	for _, tr := range s.Tracks() {
		if !tr.Stopped() || tr.Enabled() {
			t.Errorf("track %s should be stopped and disabled", tr.ID())
		}
	}
}

func TestSetKindEnabled(t *testing.T) {
	s, err := NewSyntheticDevices().GetUserMedia(context.Background(), ConstraintsFor(false))
	if err != nil {
		t.Fatal(err)
	}

	if !SetKindEnabled(s, KindAudio, false) {
		t.Fatal("expected an audio track")
	}
	if SetKindEnabled(s, KindVideo, false) {
		t.Error("audio-only stream has no video track")
	}
	if s.Tracks()[0].Enabled() {
		t.Error("audio track should be muted")
	}

	SetKindEnabled(s, KindAudio, true)
	if !s.Tracks()[0].Enabled() {
		t.Error("audio track should be unmuted")
	}
}
