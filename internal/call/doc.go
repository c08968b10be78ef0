// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

/*
Package call implements the one-to-one call negotiation engine.

State machine:

	outgoing: idle -> calling -> connected
	incoming: idle -> ringing -> connecting -> connected
	any     : -> ended -> idle   (local end/decline, after the cooldown)
	any     : -> idle            (remote end, decline or error)

At most one session exists at a time. Local media and the peer connection
are released exactly once, before the state leaves an active state.

Media acquisition and SDP creation happen without holding the engine lock.
After each of them the engine re-checks that the same session is still
current; a session ended in the meantime makes the late result be released
and the operation return ErrCallAborted.

Candidates for any call other than the current one are dropped silently.
Remote candidates that arrive before the remote description is applied are
buffered and applied afterwards; local candidates gathered before the
offer or answer has been signalled are held back until it has.

OnChange listeners always receive the latest snapshot. Transitions that
happen while listeners are running are coalesced into one delivery.
*/
package call
