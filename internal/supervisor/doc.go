// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

/*
Package supervisor runs the relay's long-lived services under a suture v4
supervisor tree.

	RootSupervisor ("spacezone-relay")
	├── MessagingSupervisor ("messaging-layer")
	│   └── RelayHubService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crash in one layer restarts that layer only. Supervisor events are
logged through sutureslog, whose slog handler forwards to zerolog.

Services return nil to stop for good, an error to be restarted, and
ctx.Err() when shutdown was requested.
*/
package supervisor
