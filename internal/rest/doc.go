// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

/*
Package rest is the client for the chat REST collaborator.

Endpoints (bearer authenticated, JSON {success, data|error} envelope):

	GET  /api/chat/conversations
	POST /api/chat/conversations                 {participantId}
	GET  /api/chat/conversations/{id}/messages   ?page=&limit=
	POST /api/chat/conversations/{id}/messages   {content, type, clientMessageId}
	PUT  /api/chat/messages/{id}/read
	GET  /api/users/search                       ?q=

Every request first waits on an outbound rate limiter and then runs through
a circuit breaker. Client errors (4xx) do not count against the breaker.

Errors:
  - 401 responses match ErrUnauthorized via errors.Is.
  - Other non-success responses are *APIError with the HTTP status and the
    server's code and message.
  - An open breaker returns an error matching ErrUnavailable.
*/
package rest
