// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package services

import (
	"context"
)

// ContextHub is satisfied by *relay.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// RelayHubService runs the relay hub's event loop. The hub closes its
// clients when the loop stops.
type RelayHubService struct {
	hub  ContextHub
	name string
}

// NewRelayHubService wraps hub.
func NewRelayHubService(hub ContextHub) *RelayHubService {
	return &RelayHubService{hub: hub, name: "relay-hub"}
}

// Serve implements suture.Service.
func (s *RelayHubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *RelayHubService) String() string {
	return s.name
}
