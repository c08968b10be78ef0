// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

// Package metrics holds the Prometheus collectors of the realtime core and
// the relay. Collectors are registered on the default registry at init time
// through promauto; callers use the Record* helpers.
//
// The relay serves the registry at /metrics. Client processes embedding the
// core may expose it with promhttp.Handler().
package metrics
