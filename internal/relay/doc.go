// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

/*
Package relay is a development server speaking the realtime protocol and
the chat REST API the client core depends on.

It is what cmd/relay runs and what the end-to-end tests of package session
start in-process. It is not a production chat backend: there is no
friendship management (every conversation is accepted), no horizontal
fan-out, and authentication is a shared HS256 secret.

# Components

  - Hub: connected clients, per-user connections, conversation rooms and
    presence. Client registration goes through the Register and Unregister
    channels served by RunWithContext.
  - Client: one websocket connection with a read pump dispatching inbound
    events and a write pump draining the send queue with keepalive pings.
  - Store: conversations, messages, read receipts and users. MemoryStore
    for tests, BadgerStore for a persistent dev server.
  - Server: chi router with the REST API, the /ws upgrade, /metrics and
    /healthz.

# Wire Protocol

Frames are transport.Envelope JSON objects. A frame carrying an id expects
an "ack" frame with the same id, with either data or error set:

	-> {"event":"send_message","id":7,"data":{"conversationId":"c1","content":"hi"}}
	<- {"event":"ack","id":7,"data":{"messageId":"m1","createdAt":"..."}}
	<- {"event":"message:new","data":{"id":"m1","conversationId":"c1",...}}

send_message is acknowledged before message:new is broadcast to the room.
Call signaling events are forwarded to the user named in "to" with "from"
set to the sender; call:offer arrives as call:incoming.
*/
package relay
