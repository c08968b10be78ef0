// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/spacezone-realtime/internal/chat"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/presence"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
)

// ViewHandlers receive updates for one open conversation. Nil handlers
// are skipped. Handlers run on the goroutine that caused the change and
// must not block.
type ViewHandlers struct {
	// Messages receives the full thread after every change to it.
	Messages func(msgs []models.Message)

	// Typing receives the users currently typing.
	Typing func(userIDs []string)
}

// ConversationView is an open conversation screen.
type ConversationView struct {
	s  *Session
	id string
	h  ViewHandlers

	mu   sync.Mutex
	page int

	sub       transport.Subscription
	unsubs    []func()
	closeOnce sync.Once
}

// OpenConversation joins the conversation's room, makes it the active
// conversation and loads the newest page of history. The conversation
// must be known to the store.
func (s *Session) OpenConversation(ctx context.Context, conversationID string, h ViewHandlers) (*ConversationView, error) {
	if _, ok := s.store.Conversation(conversationID); !ok {
		return nil, chat.ErrUnknownConversation
	}

	v := &ConversationView{s: s, id: conversationID, h: h, page: 1}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.views[v] = struct{}{}
	s.mu.Unlock()

	v.unsubs = append(v.unsubs,
		s.store.OnChange(func(c chat.Change) {
			if c.Kind == chat.ChangeMessages && c.ConversationID == v.id && v.h.Messages != nil {
				v.h.Messages(s.store.Messages(v.id))
			}
		}),
		s.tracker.OnChange(func(c presence.Change) {
			if c.Kind == presence.ChangeTyping && c.ConversationID == v.id && v.h.Typing != nil {
				v.h.Typing(s.tracker.TypingUsers(v.id))
			}
		}),
	)
	v.sub = s.conn.OnStateChange(v.onState)

	s.store.SetActive(conversationID)
	s.conn.JoinRoom(conversationID)

	if err := s.store.LoadMessages(ctx, conversationID, 1); err != nil {
		v.Close()
		return nil, fmt.Errorf("session: open conversation: %w", err)
	}
	return v, nil
}

// ID returns the conversation id.
func (v *ConversationView) ID() string { return v.id }

// Messages returns the current thread.
func (v *ConversationView) Messages() []models.Message {
	return v.s.store.Messages(v.id)
}

// TypingUsers returns the users typing in this conversation.
func (v *ConversationView) TypingUsers() []string {
	return v.s.tracker.TypingUsers(v.id)
}

// LoadOlder loads the next page of older history.
func (v *ConversationView) LoadOlder(ctx context.Context) error {
	v.mu.Lock()
	next := v.page + 1
	v.mu.Unlock()

	if err := v.s.store.LoadMessages(ctx, v.id, next); err != nil {
		return err
	}
	v.mu.Lock()
	if next > v.page {
		v.page = next
	}
	v.mu.Unlock()
	return nil
}

// onState rejoins the room whenever the connection comes back and
// reloads the newest page for messages missed while away.
func (v *ConversationView) onState(c transport.StateChange) {
	if c.To != transport.StateConnected || c.From == transport.StateConnected {
		return
	}
	v.s.conn.JoinRoom(v.id)
	if !c.Reconnected {
		return
	}
	go func() {
		if err := v.s.store.LoadMessages(v.s.ctx, v.id, 1); err != nil && v.s.ctx.Err() == nil {
			v.s.log.Warn().Err(err).Str("conversation_id", v.id).Msg("Reloading history after reconnect failed")
		}
	}()
}

// Close leaves the room, stops the local typing burst, detaches every
// listener and clears the active conversation. It is idempotent.
func (v *ConversationView) Close() {
	v.closeOnce.Do(func() {
		s := v.s
		s.conn.Off(v.sub)
		for _, unsub := range v.unsubs {
			unsub()
		}
		s.typing.Stop(v.id)
		s.conn.LeaveRoom(v.id)
		if s.store.Active() == v.id {
			s.store.SetActive("")
		}

		s.mu.Lock()
		delete(s.views, v)
		s.mu.Unlock()
	})
}
