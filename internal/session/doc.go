// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

// Package session composes the realtime components of one authenticated
// user: the transport manager, the REST client, the conversation store,
// presence and typing, and the call engine.
//
// A Session is built once per credential and owns everything it creates.
// Inbound events are routed on the transport's read goroutine in the
// order the server sent them:
//
//	message:new                     store, then clears the sender's typing entry
//	message:read                    store
//	user:typing, user:stop_typing   presence tracker
//	user:online, user:offline       presence tracker
//	call:*                          call engine
//
// The transport does not rejoin rooms after a reconnect. A
// ConversationView rejoins its own room each time the connection returns
// to connected, and reloads the newest page to pick up missed messages.
//
//	s, err := session.New(cfg, token, session.Deps{})
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Start(ctx); err != nil { ... }
//
//	view, err := s.OpenConversation(ctx, convID, session.ViewHandlers{
//	    Messages: func(msgs []models.Message) { render(msgs) },
//	})
//	defer view.Close()
package session
