// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package relay

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/spacezone-realtime/internal/models"
)

var (
	// ErrNotFound is returned for unknown conversations and messages.
	ErrNotFound = errors.New("relay: not found")

	// ErrNotMember is returned when the user does not take part in the
	// conversation.
	ErrNotMember = errors.New("relay: not a participant")
)

// Store persists relay state. Implementations are safe for concurrent use.
type Store interface {
	// CreateConversation returns the conversation between a and b,
	// creating it on first use.
	CreateConversation(ctx context.Context, a, b string) (models.Conversation, error)
	Conversation(ctx context.Context, id string) (models.Conversation, error)
	// ListConversations returns userID's conversations with UnreadCount
	// computed for userID.
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)

	// AppendMessage assigns an id and creation time and stores msg.
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)
	// ListMessages returns a page of history, oldest first. Page 1 holds
	// the newest limit messages.
	ListMessages(ctx context.Context, conversationID string, page, limit int) ([]models.Message, error)
	// MarkRead adds userID, who must take part in the conversation, to the
	// message's receipts.
	MarkRead(ctx context.Context, messageID, userID string) (models.Message, error)

	PutUser(ctx context.Context, u models.User) error
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)

	Close() error
}

// newConversation builds the conversation between a and b.
func newConversation(a, b string, now time.Time) models.Conversation {
	return models.Conversation{
		ID:               uuid.NewString(),
		Participants:     []string{a, b},
		LastActivity:     now,
		FriendshipStatus: models.FriendshipAccepted,
	}
}

// pairKey identifies a participant pair independent of order.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// pageBounds returns the [lo, hi) slice of n oldest-first messages for page.
func pageBounds(n, page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 30
	}
	hi := n - (page-1)*limit
	if hi <= 0 {
		return 0, 0
	}
	lo := hi - limit
	if lo < 0 {
		lo = 0
	}
	return lo, hi
}

func unreadFor(userID string, msgs []models.Message) int {
	n := 0
	for i := range msgs {
		m := &msgs[i]
		if m.SenderID == userID {
			continue
		}
		read := false
		for _, r := range m.ReadBy {
			if r == userID {
				read = true
				break
			}
		}
		if !read {
			n++
		}
	}
	return n
}

func matchUser(u models.User, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(u.Username), q) ||
		strings.Contains(strings.ToLower(u.DisplayName), q) ||
		strings.Contains(strings.ToLower(u.ID), q)
}

func sortConversations(list []models.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].LastActivity.Equal(list[j].LastActivity) {
			return list[i].LastActivity.After(list[j].LastActivity)
		}
		return list[i].ID < list[j].ID
	})
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]*models.Conversation
	pairs    map[string]string
	messages map[string][]models.Message // by conversation, oldest first
	msgConv  map[string]string           // message id -> conversation id
	users    map[string]models.User
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]*models.Conversation),
		pairs:    make(map[string]string),
		messages: make(map[string][]models.Message),
		msgConv:  make(map[string]string),
		users:    make(map[string]models.User),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, a, b string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pairs[pairKey(a, b)]; ok {
		return s.convs[id].Clone(), nil
	}
	c := newConversation(a, b, s.now())
	s.convs[c.ID] = &c
	s.pairs[pairKey(a, b)] = c.ID
	return c.Clone(), nil
}

func (s *MemoryStore) Conversation(_ context.Context, id string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return models.Conversation{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Conversation
	for _, c := range s.convs {
		if !c.HasParticipant(userID) {
			continue
		}
		cp := c.Clone()
		cp.UnreadCount = unreadFor(userID, s.messages[c.ID])
		out = append(out, cp)
	}
	sortConversations(out)
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[msg.ConversationID]
	if !ok {
		return models.Message{}, ErrNotFound
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now().UTC()
	msg.Status = ""
	msg.ServerID = ""
	s.messages[c.ID] = append(s.messages[c.ID], msg)
	s.msgConv[msg.ID] = c.ID
	c.LastMessage = msg.Summary()
	c.LastActivity = msg.CreatedAt
	return msg.Clone(), nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string, page, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.convs[conversationID]; !ok {
		return nil, ErrNotFound
	}
	all := s.messages[conversationID]
	lo, hi := pageBounds(len(all), page, limit)
	out := make([]models.Message, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, all[i].Clone())
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, messageID, userID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convID, ok := s.msgConv[messageID]
	if !ok {
		return models.Message{}, ErrNotFound
	}
	if !s.convs[convID].HasParticipant(userID) {
		return models.Message{}, ErrNotMember
	}
	msgs := s.messages[convID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].MarkReadBy(userID)
			return msgs[i].Clone(), nil
		}
	}
	return models.Message{}, ErrNotFound
}

func (s *MemoryStore) PutUser(_ context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) SearchUsers(_ context.Context, query string, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.User
	for _, u := range s.users {
		if matchUser(u, query) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
