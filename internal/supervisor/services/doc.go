// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

// Package services adapts relay components to suture.Service.
//
//	tree.AddMessagingService(services.NewRelayHubService(hub))
//	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
//
// Each wrapper names itself through String so supervisor events identify
// the service.
package services
