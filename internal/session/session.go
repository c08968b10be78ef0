// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/spacezone-realtime/internal/call"
	"github.com/tomtom215/spacezone-realtime/internal/callui"
	"github.com/tomtom215/spacezone-realtime/internal/chat"
	"github.com/tomtom215/spacezone-realtime/internal/config"
	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/media"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/peer"
	"github.com/tomtom215/spacezone-realtime/internal/presence"
	"github.com/tomtom215/spacezone-realtime/internal/rest"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
)

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("session: closed")

// Backend is the REST surface a session uses. *rest.Client satisfies it.
type Backend interface {
	chat.Backend
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
}

// Deps overrides collaborators. Zero fields take the production defaults:
// the REST client, synthetic capture devices and pion peer connections.
type Deps struct {
	Backend Backend
	Devices media.Devices
	Peers   peer.Factory
}

// Session is the realtime core of one authenticated user.
type Session struct {
	selfID string
	log    zerolog.Logger

	conn    *transport.Manager
	api     Backend
	store   *chat.Store
	tracker *presence.Tracker
	typing  *presence.TypingEmitter
	calls   *call.Engine

	// ctx bounds background refreshes and is canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
	subs    []transport.Subscription
	views   map[*ConversationView]struct{}
}

// New builds a session for the bearer token. The local user id is read
// from the token's "sub" claim.
func New(cfg *config.Config, token string, deps Deps) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	claims, err := transport.InspectToken(token, time.Now())
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("session: %w: token carries no user id", transport.ErrAuthRequired)
	}

	cred := transport.StaticToken(token)
	if deps.Backend == nil {
		deps.Backend = rest.New(rest.ConfigFrom(cfg.REST), cred)
	}
	if deps.Devices == nil {
		deps.Devices = media.NewSyntheticDevices()
	}
	if deps.Peers == nil {
		deps.Peers = peer.NewPionFactory()
	}

	conn := transport.New(transport.ConfigFrom(cfg.Transport), cred)
	pcfg := presence.ConfigFrom(cfg.Presence)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		selfID:  claims.UserID,
		log:     logging.WithComponent("session").With().Str("user_id", claims.UserID).Logger(),
		conn:    conn,
		api:     deps.Backend,
		store:   chat.NewStore(chat.ConfigFrom(cfg.Chat), claims.UserID, conn, deps.Backend),
		tracker: presence.NewTracker(pcfg),
		typing:  presence.NewTypingEmitter(pcfg, conn),
		calls:   call.NewEngine(call.ConfigFrom(cfg.Call), conn, deps.Devices, deps.Peers),
		ctx:     ctx,
		cancel:  cancel,
		views:   make(map[*ConversationView]struct{}),
	}
	return s, nil
}

// SelfID returns the local user id.
func (s *Session) SelfID() string { return s.selfID }

// Transport returns the connection manager.
func (s *Session) Transport() *transport.Manager { return s.conn }

// Store returns the conversation store.
func (s *Session) Store() *chat.Store { return s.store }

// Presence returns the presence and typing tracker.
func (s *Session) Presence() *presence.Tracker { return s.tracker }

// Calls returns the call engine.
func (s *Session) Calls() *call.Engine { return s.calls }

// Start registers inbound routing, connects and loads the conversation
// list. A transient connect failure is logged and the transport keeps
// retrying; credential failures are returned. Start runs once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.subs = s.routes()
	s.mu.Unlock()

	if err := s.conn.Connect(ctx); err != nil {
		if errors.Is(err, transport.ErrAuthRequired) || errors.Is(err, transport.ErrCredentialExpired) {
			return fmt.Errorf("session: connect: %w", err)
		}
		s.log.Warn().Err(err).Msg("Realtime connection not yet available")
	}
	if err := s.store.LoadConversations(ctx); err != nil {
		return fmt.Errorf("session: load conversations: %w", err)
	}
	return nil
}

// StartConversation returns the conversation with participantID,
// creating it when needed.
func (s *Session) StartConversation(ctx context.Context, participantID string) (models.Conversation, error) {
	return s.store.EnsureConversation(ctx, participantID)
}

// SendMessage ends the local typing burst and sends a text message.
func (s *Session) SendMessage(ctx context.Context, conversationID, content string) (models.Message, error) {
	s.typing.Sent(conversationID)
	return s.store.SendMessage(ctx, conversationID, content, models.MessageText)
}

// Keystroke reports local input in conversationID.
func (s *Session) Keystroke(conversationID string) {
	s.typing.Keystroke(conversationID)
}

// MarkRead sends a read receipt for messageID.
func (s *Session) MarkRead(ctx context.Context, conversationID, messageID string) error {
	return s.store.MarkRead(ctx, conversationID, messageID)
}

// SearchUsers looks users up by name.
func (s *Session) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	return s.api.SearchUsers(ctx, query)
}

// CallPresentation returns what the call UI should show now.
func (s *Session) CallPresentation() callui.Presentation {
	return callui.View(s.calls.Snapshot())
}

// Close ends any call, closes open views, stops timers and disconnects.
// It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	views := make([]*ConversationView, 0, len(s.views))
	for v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
	s.calls.Close()
	s.typing.Close()
	s.tracker.Close()
	s.cancel()
	// Disconnect also drops every transport registration.
	s.conn.Disconnect()
	s.log.Info().Msg("Session closed")
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
