// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

/*
Package chat caches conversations and their messages and reconciles
optimistic sends with the server's copies.

Sending:

	SendMessage inserts a temporary message ("temp_" id, status sending) at
	the end of the thread, then delivers it over the realtime transport with
	an acknowledgement, or over REST when the transport is down.

	ack received  -> status sent, ack id bound, entry kept until the echo
	ack timeout   -> status failed, entry kept (it may have been delivered)
	rejected      -> entry removed
	REST success  -> entry replaced by the returned message

Receiving:

	A message from the local user is matched against the temporary messages
	of its conversation by the configured Matcher and replaces the match in
	place. With no match it is an echo of something already reconciled and
	is dropped. Messages from other users are deduplicated by id.

Thread order is arrival order at the store. Replacement never reorders.
*/
package chat
