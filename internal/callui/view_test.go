// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package callui

import (
	"testing"

	"github.com/tomtom215/spacezone-realtime/internal/call"
)

func TestView(t *testing.T) {
	tests := []struct {
		state call.State
		dir   call.Direction
		want  Presentation
	}{
		{call.StateIdle, call.DirectionNone, None},
		{call.StateCalling, call.DirectionOutgoing, OutgoingModal},
		{call.StateCalling, call.DirectionIncoming, None},
		{call.StateRinging, call.DirectionIncoming, IncomingModal},
		{call.StateRinging, call.DirectionOutgoing, None},
		{call.StateConnecting, call.DirectionOutgoing, CallWindow},
		{call.StateConnecting, call.DirectionIncoming, CallWindow},
		{call.StateConnected, call.DirectionIncoming, CallWindow},
		{call.StateEnded, call.DirectionOutgoing, None},
	}

	for _, tt := range tests {
		t.Run(tt.state.String()+"/"+tt.dir.String(), func(t *testing.T) {
			if got := View(call.Snapshot{State: tt.state, Direction: tt.dir}); got != tt.want {
				t.Errorf("View(%s, %s) = %s, want %s", tt.state, tt.dir, got, tt.want)
			}
		})
	}
}
