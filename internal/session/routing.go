// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package session

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
)

// routes registers the session-wide inbound handlers.
func (s *Session) routes() []transport.Subscription {
	return []transport.Subscription{
		on(s, models.EventMessageNew, s.onMessage),
		on(s, models.EventMessageRead, s.store.HandleRead),
		on(s, models.EventUserTyping, func(ev models.TypingEvent) {
			if ev.UserID != s.selfID {
				s.tracker.TypingStarted(ev.ConversationID, ev.UserID)
			}
		}),
		on(s, models.EventUserStopTyping, func(ev models.TypingEvent) {
			s.tracker.TypingStopped(ev.ConversationID, ev.UserID)
		}),
		on(s, models.EventUserOnline, s.onOnline),
		on(s, models.EventUserOffline, func(ev models.PresenceEvent) {
			if ev.UserID != "" {
				s.tracker.SetOnline(ev.UserID, false)
			}
		}),

		on(s, models.EventCallIncoming, func(o models.CallOffer) {
			if err := s.calls.HandleIncoming(o); err != nil {
				s.log.Warn().Err(err).Str("call_id", o.CallID).Msg("Incoming call rejected")
			}
		}),
		on(s, models.EventCallAnswer, s.calls.HandleAnswer),
		on(s, models.EventCallICECandidate, s.calls.HandleCandidate),
		on(s, models.EventCallDecline, s.remoteEnd(models.EventCallDecline)),
		on(s, models.EventCallEnd, s.remoteEnd(models.EventCallEnd)),
		on(s, models.EventCallError, s.remoteEnd(models.EventCallError)),

		s.conn.OnStateChange(s.onState),
	}
}

// on registers a handler decoding the payload as T. Malformed payloads
// are logged and dropped.
func on[T any](s *Session, event string, fn func(T)) transport.Subscription {
	return s.conn.On(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			s.log.Warn().Err(err).Str("event", event).Msg("Dropping malformed event")
			return
		}
		fn(v)
	})
}

func (s *Session) onMessage(msg models.Message) {
	s.store.HandleIncoming(msg)
	s.tracker.ClearTyping(msg.ConversationID, msg.SenderID)
}

// onOnline handles both the per-user event and the snapshot sent on
// connect.
func (s *Session) onOnline(ev models.PresenceEvent) {
	if ev.UserIDs != nil {
		s.tracker.SetOnlineUsers(ev.UserIDs)
		return
	}
	if ev.UserID != "" && ev.UserID != s.selfID {
		s.tracker.SetOnline(ev.UserID, true)
	}
}

func (s *Session) remoteEnd(event string) func(models.CallEnd) {
	return func(m models.CallEnd) {
		s.calls.HandleRemoteEnd(event, m)
	}
}

// onState resets presence when a connection opens: the server only sends
// a snapshot when someone else is online. A reconnect also refreshes the
// conversation list.
func (s *Session) onState(c transport.StateChange) {
	if c.To != transport.StateConnected {
		return
	}
	s.tracker.SetOnlineUsers(nil)
	if !c.Reconnected || s.isClosed() {
		return
	}
	go func() {
		if err := s.store.LoadConversations(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("Refreshing conversations after reconnect failed")
		}
	}()
}
