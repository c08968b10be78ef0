// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAck(t *testing.T) {
	before := testutil.ToFloat64(TransportAcks.WithLabelValues("timeout"))
	RecordAck("timeout", 10*time.Second)
	after := testutil.ToFloat64(TransportAcks.WithLabelValues("timeout"))

	if after-before != 1 {
		t.Errorf("expected timeout counter to grow by 1, got %v", after-before)
	}
}

func TestRecordFrame(t *testing.T) {
	sent := testutil.ToFloat64(TransportFrames.WithLabelValues("sent"))
	recv := testutil.ToFloat64(TransportFrames.WithLabelValues("received"))

	RecordFrame(true)
	RecordFrame(false)
	RecordFrame(false)

	if got := testutil.ToFloat64(TransportFrames.WithLabelValues("sent")) - sent; got != 1 {
		t.Errorf("sent frames delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(TransportFrames.WithLabelValues("received")) - recv; got != 2 {
		t.Errorf("received frames delta = %v, want 2", got)
	}
}

func TestSetTransportState(t *testing.T) {
	SetTransportState(2)
	if got := testutil.ToFloat64(TransportState); got != 2 {
		t.Errorf("TransportState = %v, want 2", got)
	}
}

func TestRecordTracksStopped(t *testing.T) {
	before := testutil.ToFloat64(CallTracksStopped)
	RecordTracksStopped(2)
	RecordTracksStopped(0)

	if got := testutil.ToFloat64(CallTracksStopped) - before; got != 2 {
		t.Errorf("tracks stopped delta = %v, want 2", got)
	}
}

func TestCallCounters(t *testing.T) {
	tests := []struct {
		name   string
		record func()
		read   func() float64
	}{
		{"stale candidate", RecordStaleCandidate, func() float64 { return testutil.ToFloat64(CallStaleCandidates) }},
		{"busy rejection", RecordBusyRejection, func() float64 { return testutil.ToFloat64(CallBusyRejections) }},
		{"dropped echo", RecordDroppedEcho, func() float64 { return testutil.ToFloat64(ChatDroppedEchoes) }},
		{"transition", func() { RecordCallTransition("idle", "calling") }, func() float64 {
			return testutil.ToFloat64(CallTransitions.WithLabelValues("idle", "calling"))
		}},
		{"reconciliation", func() { RecordReconciliation("heuristic") }, func() float64 {
			return testutil.ToFloat64(ChatReconciliations.WithLabelValues("heuristic"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.read()
			tt.record()
			if got := tt.read() - before; got != 1 {
				t.Errorf("delta = %v, want 1", got)
			}
		})
	}
}
