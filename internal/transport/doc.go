// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

/*
Package transport owns the single authenticated websocket connection of a
realtime session.

The Manager authenticates the handshake with the session bearer token,
multiplexes named events over the socket, correlates acknowledged sends,
and reconnects with a bounded exponential backoff.

Wire format: every frame is a JSON envelope.

	{"event":"send_message","id":7,"data":{"conversationId":"c1","content":"hi"}}
	{"event":"ack","id":7,"data":{"messageId":"m1"}}
	{"event":"ack","id":8,"error":"Not friends"}
	{"event":"message:new","data":{...}}

Reconnection:

	server close frame   -> one immediate attempt, then the backoff schedule
	network drop         -> backoff schedule: 1s, 2s, 4s, 5s, 5s
	attempts exhausted   -> StateFailed until Connect is called again
	handshake 401 / 403  -> StateFailed, never retried

Rooms joined with JoinRoom are not rejoined after a reconnect. Callers that
need membership observe OnStateChange and join again on StateConnected.

Handlers registered with On run synchronously on the connection's read
goroutine in the order the server sent the frames. A handler must not
wait on EmitWithAck, which needs that goroutine to deliver the ack.
*/
package transport
