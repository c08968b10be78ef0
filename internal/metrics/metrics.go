// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport Metrics
	TransportState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacezone_transport_state",
			Help: "Current connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=failed)",
		},
	)

	TransportReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_transport_reconnect_attempts_total",
			Help: "Reconnect attempts by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "exhausted", "auth_rejected"
	)

	TransportFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_transport_frames_total",
			Help: "Websocket frames by direction",
		},
		[]string{"direction"}, // "sent", "received"
	)

	TransportAcks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_transport_acks_total",
			Help: "Acknowledged sends by result",
		},
		[]string{"result"}, // "ok", "rejected", "timeout", "closed"
	)

	TransportAckLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spacezone_transport_ack_latency_seconds",
			Help:    "Time from send to acknowledgement",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// Chat Metrics
	ChatOptimisticSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_chat_optimistic_sends_total",
			Help: "Optimistic message sends by path and outcome",
		},
		[]string{"path", "outcome"}, // path: "realtime", "rest"; outcome: "sent", "failed", "removed"
	)

	ChatReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_chat_reconciliations_total",
			Help: "Server echoes reconciled with optimistic messages by strategy",
		},
		[]string{"strategy"}, // "id", "heuristic", "rest"
	)

	ChatDroppedEchoes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spacezone_chat_dropped_echoes_total",
			Help: "Inbound messages dropped as duplicates of already reconciled messages",
		},
	)

	// Call Metrics
	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_call_transitions_total",
			Help: "Call state transitions",
		},
		[]string{"from", "to"},
	)

	CallEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_call_ended_total",
			Help: "Ended calls by reason",
		},
		[]string{"reason"},
	)

	CallTracksStopped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spacezone_call_tracks_stopped_total",
			Help: "Local media tracks released",
		},
	)

	CallStaleCandidates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spacezone_call_stale_candidates_total",
			Help: "Inbound ICE candidates discarded for not matching the active call",
		},
	)

	CallBusyRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spacezone_call_busy_rejections_total",
			Help: "Incoming offers declined because a call was already active",
		},
	)

	// REST Client Metrics
	RESTRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spacezone_rest_request_duration_seconds",
			Help:    "REST collaborator request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spacezone_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Relay Metrics
	RelayClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacezone_relay_clients",
			Help: "Connected relay websocket clients",
		},
	)

	RelayRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacezone_relay_rooms",
			Help: "Conversation rooms with at least one member",
		},
	)

	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacezone_relay_events_total",
			Help: "Inbound relay events by name and result",
		},
		[]string{"event", "result"}, // result: "ok", "invalid", "rejected"
	)

	RelayHTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spacezone_relay_http_request_duration_seconds",
			Help:    "Relay REST API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// SetTransportState records the numeric connection state.
func SetTransportState(state int) {
	TransportState.Set(float64(state))
}

// RecordReconnect records one reconnect attempt outcome.
func RecordReconnect(outcome string) {
	TransportReconnectAttempts.WithLabelValues(outcome).Inc()
}

// RecordFrame records one websocket frame.
func RecordFrame(sent bool) {
	if sent {
		TransportFrames.WithLabelValues("sent").Inc()
		return
	}
	TransportFrames.WithLabelValues("received").Inc()
}

// RecordAck records the result of an acknowledged send.
func RecordAck(result string, latency time.Duration) {
	TransportAcks.WithLabelValues(result).Inc()
	if result == "ok" || result == "rejected" {
		TransportAckLatency.Observe(latency.Seconds())
	}
}

// RecordOptimisticSend records the outcome of an optimistic message.
func RecordOptimisticSend(path, outcome string) {
	ChatOptimisticSends.WithLabelValues(path, outcome).Inc()
}

// RecordReconciliation records which strategy paired an echo.
func RecordReconciliation(strategy string) {
	ChatReconciliations.WithLabelValues(strategy).Inc()
}

// RecordDroppedEcho records a duplicate inbound message.
func RecordDroppedEcho() {
	ChatDroppedEchoes.Inc()
}

// RecordCallTransition records a call state change.
func RecordCallTransition(from, to string) {
	CallTransitions.WithLabelValues(from, to).Inc()
}

// RecordCallEnded records the reason a call ended.
func RecordCallEnded(reason string) {
	CallEnded.WithLabelValues(reason).Inc()
}

// RecordTracksStopped records released local tracks.
func RecordTracksStopped(n int) {
	if n > 0 {
		CallTracksStopped.Add(float64(n))
	}
}

// RecordStaleCandidate records a discarded ICE candidate.
func RecordStaleCandidate() {
	CallStaleCandidates.Inc()
}

// RecordBusyRejection records an offer declined as busy.
func RecordBusyRejection() {
	CallBusyRejections.Inc()
}

// RecordRESTRequest records one REST collaborator call.
func RecordRESTRequest(endpoint, status string, duration time.Duration) {
	RESTRequestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

// RecordRelayEvent records one inbound relay event.
func RecordRelayEvent(event, result string) {
	RelayEvents.WithLabelValues(event, result).Inc()
}

// SetRelayClients records the connected client count.
func SetRelayClients(n int) {
	RelayClients.Set(float64(n))
}

// SetRelayRooms records the non-empty room count.
func SetRelayRooms(n int) {
	RelayRooms.Set(float64(n))
}

// RecordRelayHTTP records one relay REST request.
func RecordRelayHTTP(method, route, status string, duration time.Duration) {
	RelayHTTPDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
