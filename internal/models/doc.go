// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

/*
Package models defines the data shared by the realtime client, the REST
collaborator client and the development relay.

Model Categories:

 1. Chat: Conversation, Message, MessageSummary, User
 2. Realtime event payloads: the JSON bodies carried by each named event
    (JoinPayload, SendMessagePayload, TypingPayload, CallOffer, ...)
 3. REST envelope: APIResponse with the {success, data | error} shape

Wire payloads use camelCase field names. Fields that only exist on the
client (message Status, ServerID) are never sent by the relay and are
ignored when received.
*/
package models
