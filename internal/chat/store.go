// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/spacezone-realtime/internal/config"
	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/metrics"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
	"github.com/tomtom215/spacezone-realtime/internal/validation"
)

// Sender is the realtime side of delivery.
type Sender interface {
	IsConnected() bool
	EmitWithAck(ctx context.Context, event string, payload any) (json.RawMessage, error)
	Emit(event string, payload any) error
}

// Backend is the REST collaborator.
type Backend interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, page, limit int) ([]models.Message, error)
	CreateConversation(ctx context.Context, participantID string) (models.Conversation, error)
	SendMessage(ctx context.Context, p models.SendMessagePayload) (models.Message, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Config configures a Store.
type Config struct {
	// ReconcileWindow bounds the creation time difference the heuristic
	// matcher accepts.
	ReconcileWindow time.Duration

	PageSize int

	// ClientIDs sends the temporary id as clientMessageId.
	ClientIDs bool

	// Matcher overrides DefaultMatcher(ReconcileWindow).
	Matcher Matcher
}

// ConfigFrom converts the application chat configuration.
func ConfigFrom(c config.ChatConfig) Config {
	return Config{
		ReconcileWindow: c.ReconcileWindow,
		PageSize:        c.PageSize,
		ClientIDs:       c.ClientIDs,
	}
}

// ChangeKind tells what a Change is about.
type ChangeKind int

const (
	ChangeConversations ChangeKind = iota
	ChangeMessages
)

// Change describes a store update.
type Change struct {
	Kind           ChangeKind
	ConversationID string
}

type listener struct {
	id uint64
	fn func(Change)
}

// refreshTimeout bounds the background lookup of a peer-started conversation.
const refreshTimeout = 15 * time.Second

// Store is the conversation and message cache. It is safe for concurrent use.
type Store struct {
	cfg     Config
	selfID  string
	sender  Sender
	backend Backend
	matcher Matcher
	log     zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	convs     map[string]*models.Conversation
	threads   map[string][]*models.Message
	active    string
	creating  map[string]bool
	listeners []listener

	// reconciled maps a temporary id replaced by its echo while delivery
	// was still in flight to the canonical id. Delivery consumes it.
	reconciled map[string]string

	// unresolved holds conversations first seen through an incoming
	// message, not yet confirmed by the server list.
	unresolved map[string]bool
	refreshing bool
	nextID    uint64
}

// NewStore creates an empty store for the local user selfID.
func NewStore(cfg Config, selfID string, sender Sender, backend Backend) *Store {
	if cfg.ReconcileWindow <= 0 {
		cfg.ReconcileWindow = 10 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}
	m := cfg.Matcher
	if m == nil {
		m = DefaultMatcher(cfg.ReconcileWindow)
	}
	return &Store{
		cfg:      cfg,
		selfID:   selfID,
		sender:   sender,
		backend:  backend,
		matcher:  m,
		log:      logging.WithComponent("chat"),
		now:      time.Now,
		convs:    make(map[string]*models.Conversation),
		threads:  make(map[string][]*models.Message),
		creating: make(map[string]bool),

		reconciled: make(map[string]string),
		unresolved: make(map[string]bool),
	}
}

// OnChange registers fn and returns its unsubscribe func.
func (s *Store) OnChange(fn func(Change)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Conversations returns copies ordered by most recent activity.
func (s *Store) Conversations() []models.Conversation {
	s.mu.Lock()
	out := make([]models.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c.Clone())
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Conversation returns a copy of one conversation.
func (s *Store) Conversation(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return models.Conversation{}, false
	}
	return c.Clone(), true
}

// Messages returns copies of a conversation's thread in display order.
func (s *Store) Messages(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread := s.threads[conversationID]
	out := make([]models.Message, len(thread))
	for i, m := range thread {
		out[i] = m.Clone()
	}
	return out
}

// Active returns the conversation currently on screen.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive marks conversationID as on screen, or none for "". The active
// conversation does not accumulate unread messages.
func (s *Store) SetActive(conversationID string) {
	s.mu.Lock()
	s.active = conversationID
	if c, ok := s.convs[conversationID]; ok {
		c.UnreadCount = 0
	}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeConversations, ConversationID: conversationID})
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadConversations replaces the conversation list with the server's.
func (s *Store) LoadConversations(ctx context.Context) error {
	list, err := s.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("chat: load conversations: %w", err)
	}

	s.mu.Lock()
	next := make(map[string]*models.Conversation, len(list))
	for i := range list {
		c := list[i].Clone()
		if c.ID == s.active {
			c.UnreadCount = 0
		}
		next[c.ID] = &c
	}
	s.convs = next
	clear(s.unresolved)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeConversations})
	return nil
}

// resolveConversations fills in unresolved conversations from the server
// list, keeping local threads and counters. Conversations the server does
// not return stay unresolved.
func (s *Store) resolveConversations(ctx context.Context) error {
	list, err := s.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("chat: resolve conversations: %w", err)
	}

	s.mu.Lock()
	resolved := 0
	for i := range list {
		id := list[i].ID
		if !s.unresolved[id] {
			continue
		}
		c := list[i].Clone()
		if local, ok := s.convs[id]; ok {
			c.UnreadCount = max(c.UnreadCount, local.UnreadCount)
			if c.LastActivity.Before(local.LastActivity) {
				c.LastMessage, c.LastActivity = local.LastMessage, local.LastActivity
			}
		}
		if id == s.active {
			c.UnreadCount = 0
		}
		s.convs[id] = &c
		delete(s.unresolved, id)
		resolved++
	}
	s.mu.Unlock()

	if resolved > 0 {
		s.notify(Change{Kind: ChangeConversations})
	}
	return nil
}

func (s *Store) refreshUnresolved() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := s.resolveConversations(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Refreshing peer-started conversation failed")
	}
	s.mu.Lock()
	s.refreshing = false
	s.mu.Unlock()
}

// LoadMessages fetches one page of history. Page 1 replaces the cached
// thread, keeping temporary messages its history does not confirm; later
// pages prepend older messages not already present.
func (s *Store) LoadMessages(ctx context.Context, conversationID string, page int) error {
	if page < 1 {
		page = 1
	}
	list, err := s.backend.ListMessages(ctx, conversationID, page, s.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("chat: load messages: %w", err)
	}

	s.mu.Lock()
	old := s.threads[conversationID]
	seen := make(map[string]bool, len(list)+len(old))
	fetched := make([]*models.Message, 0, len(list))
	for i := range list {
		m := list[i].Clone()
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		m.ConversationID = conversationID
		fetched = append(fetched, &m)
	}

	var thread []*models.Message
	if page == 1 {
		pending := temporaries(old)
		for _, m := range fetched {
			if m.SenderID != s.selfID || len(pending) == 0 {
				continue
			}
			if i, strategy := s.matcher.Match(m, pending); i >= 0 {
				metrics.RecordReconciliation(strategy)
				pending = append(pending[:i:i], pending[i+1:]...)
			}
		}
		thread = append(fetched, pending...)
	} else {
		thread = make([]*models.Message, 0, len(fetched)+len(old))
		for _, m := range fetched {
			if !containsID(old, m.ID) {
				thread = append(thread, m)
			}
		}
		thread = append(thread, old...)
	}
	s.threads[conversationID] = thread
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	return nil
}

// EnsureConversation returns the conversation with participantID, creating
// it through the backend when none is cached. A second call for the same
// participant while the first is still running fails with ErrCreateInFlight.
func (s *Store) EnsureConversation(ctx context.Context, participantID string) (models.Conversation, error) {
	if participantID == "" || participantID == s.selfID {
		return models.Conversation{}, fmt.Errorf("%w: invalid participant %q", ErrInvalidMessage, participantID)
	}

	s.mu.Lock()
	for _, c := range s.convs {
		if c.HasParticipant(participantID) && c.HasParticipant(s.selfID) {
			cp := c.Clone()
			s.mu.Unlock()
			return cp, nil
		}
	}
	if s.creating[participantID] {
		s.mu.Unlock()
		return models.Conversation{}, ErrCreateInFlight
	}
	s.creating[participantID] = true
	s.mu.Unlock()

	conv, err := s.backend.CreateConversation(ctx, participantID)

	s.mu.Lock()
	delete(s.creating, participantID)
	if err != nil {
		s.mu.Unlock()
		return models.Conversation{}, fmt.Errorf("chat: create conversation: %w", err)
	}
	c := conv.Clone()
	s.convs[c.ID] = &c
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeConversations, ConversationID: c.ID})
	return conv, nil
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

// SendMessage inserts a temporary message and delivers it. The returned
// message is the entry as it stands after delivery: sent, failed, or the
// server copy after a REST send. A rejected message is removed and
// returned with a non-nil error matching ErrRejected or the cause.
func (s *Store) SendMessage(ctx context.Context, conversationID, content string, typ models.MessageType) (models.Message, error) {
	if typ == "" {
		typ = models.MessageText
	}
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	payload := models.SendMessagePayload{ConversationID: conversationID, Content: content, Type: typ}
	if verr := validation.ValidateStruct(&payload); verr != nil {
		return models.Message{}, fmt.Errorf("%w: %s", ErrInvalidMessage, verr.Error())
	}

	s.mu.Lock()
	if s.unresolved[conversationID] {
		s.mu.Unlock()
		if err := s.resolveConversations(ctx); err != nil {
			return models.Message{}, err
		}
		s.mu.Lock()
	}
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return models.Message{}, ErrUnknownConversation
	}
	if !conv.FriendshipStatus.CanSend() {
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w (status %s)", ErrNotFriends, conv.FriendshipStatus)
	}
	temp := &models.Message{
		ID:             models.TempIDPrefix + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       s.selfID,
		Content:        content,
		Type:           typ,
		CreatedAt:      s.now(),
		Status:         models.StatusSending,
	}
	s.threads[conversationID] = append(s.threads[conversationID], temp)
	s.touchLocked(conv, temp)
	tempID := temp.ID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	return s.deliver(ctx, conversationID, tempID)
}

// RetryMessage re-sends a failed message in its existing slot.
func (s *Store) RetryMessage(ctx context.Context, conversationID, tempID string) (models.Message, error) {
	s.mu.Lock()
	m := findByID(s.threads[conversationID], tempID)
	if m == nil || !m.IsTemporary() {
		s.mu.Unlock()
		return models.Message{}, ErrUnknownMessage
	}
	if m.Status != models.StatusFailed {
		s.mu.Unlock()
		return models.Message{}, ErrNotFailed
	}
	m.Status = models.StatusSending
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	return s.deliver(ctx, conversationID, tempID)
}

// DiscardMessage removes a failed message.
func (s *Store) DiscardMessage(conversationID, tempID string) error {
	s.mu.Lock()
	m := findByID(s.threads[conversationID], tempID)
	if m == nil || !m.IsTemporary() {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	if m.Status != models.StatusFailed {
		s.mu.Unlock()
		return ErrNotFailed
	}
	s.removeLocked(conversationID, tempID)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	return nil
}

// deliver sends the temporary message tempID and applies the outcome to
// its slot, if the slot still exists.
func (s *Store) deliver(ctx context.Context, conversationID, tempID string) (models.Message, error) {
	s.mu.Lock()
	m := findByID(s.threads[conversationID], tempID)
	if m == nil {
		// Reconciled by an echo before delivery started.
		out, _ := s.takeReconciledLocked(conversationID, tempID)
		s.mu.Unlock()
		return out, nil
	}
	payload := models.SendMessagePayload{
		ConversationID: conversationID,
		Content:        m.Content,
		Type:           m.Type,
	}
	s.mu.Unlock()
	if s.cfg.ClientIDs {
		payload.ClientMessageID = tempID
	}

	if s.sender.IsConnected() {
		raw, err := s.sender.EmitWithAck(ctx, models.EventSendMessage, payload)
		if err == nil {
			var ack models.SendMessageAck
			if len(raw) > 0 {
				if derr := json.Unmarshal(raw, &ack); derr != nil {
					s.log.Warn().Err(derr).Str("temp_id", tempID).Msg("Unreadable send acknowledgement")
				}
			}
			if ack.Error != "" {
				err = &transport.AckError{Event: models.EventSendMessage, Message: ack.Error}
			} else {
				metrics.RecordOptimisticSend("realtime", "sent")
				return s.markSent(conversationID, tempID, ack.MessageID), nil
			}
		}
		if !errors.Is(err, transport.ErrNotConnected) {
			return s.settle(conversationID, tempID, "realtime", err)
		}
		s.log.Debug().Str("temp_id", tempID).Msg("Connection lost before send, using REST")
	}

	msg, err := s.backend.SendMessage(ctx, payload)
	if err != nil {
		return s.settle(conversationID, tempID, "rest", err)
	}
	metrics.RecordOptimisticSend("rest", "sent")
	return s.reconcileSent(conversationID, tempID, msg), nil
}

// settle applies a failed delivery: kept as failed when the server may
// have the message, removed otherwise.
func (s *Store) settle(conversationID, tempID, path string, err error) (models.Message, error) {
	s.mu.Lock()
	if findByID(s.threads[conversationID], tempID) == nil {
		if out, ok := s.takeReconciledLocked(conversationID, tempID); ok {
			s.mu.Unlock()
			metrics.RecordOptimisticSend(path, "sent")
			s.log.Debug().Err(err).Str("temp_id", tempID).Str("message_id", out.ID).Msg("Send unconfirmed but echo already reconciled")
			return out, nil
		}
	}
	s.mu.Unlock()

	if uncertain(err) {
		metrics.RecordOptimisticSend(path, "failed")
		s.mu.Lock()
		m := findByID(s.threads[conversationID], tempID)
		var out models.Message
		if m != nil {
			m.Status = models.StatusFailed
			out = m.Clone()
		}
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("temp_id", tempID).Str("path", path).Msg("Send unconfirmed, kept as failed")
		s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
		return out, fmt.Errorf("chat: send unconfirmed: %w", err)
	}

	metrics.RecordOptimisticSend(path, "rejected")
	s.mu.Lock()
	removed := s.removeLocked(conversationID, tempID)
	s.mu.Unlock()
	s.log.Info().Err(err).Str("temp_id", tempID).Str("path", path).Msg("Send rejected, message removed")
	if removed {
		s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	}
	if transport.IsRejected(err) {
		return models.Message{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return models.Message{}, fmt.Errorf("chat: send failed: %w", err)
}

// uncertain reports errors after which the message may still have reached
// the server.
func uncertain(err error) bool {
	if transport.IsTimeout(err) || errors.Is(err, transport.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *Store) markSent(conversationID, tempID, serverID string) models.Message {
	s.mu.Lock()
	thread := s.threads[conversationID]
	m := findByID(thread, tempID)
	if m == nil {
		// Reconciled by the echo already.
		out, ok := s.takeReconciledLocked(conversationID, tempID)
		if c := findByID(thread, serverID); !ok && serverID != "" && c != nil {
			out = c.Clone()
		}
		s.mu.Unlock()
		return out
	}
	m.Status = models.StatusSent
	m.ServerID = serverID
	out := m.Clone()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	return out
}

// reconcileSent replaces the temporary entry with the copy the REST send
// returned.
func (s *Store) reconcileSent(conversationID, tempID string, msg models.Message) models.Message {
	canonical := msg.Clone()
	if canonical.ConversationID == "" {
		canonical.ConversationID = conversationID
	}
	canonical.Status = models.StatusSent

	s.mu.Lock()
	thread := s.threads[conversationID]
	idx := indexByID(thread, tempID)
	switch {
	case idx < 0:
		// The echo got here first.
		delete(s.reconciled, tempID)
	case canonical.ID == "" || containsID(thread, canonical.ID):
		if canonical.ID == "" {
			thread[idx].Status = models.StatusSent
			canonical = thread[idx].Clone()
		} else {
			s.removeLocked(conversationID, tempID)
		}
	default:
		thread[idx] = &canonical
		metrics.RecordReconciliation("rest_response")
	}
	if c, ok := s.convs[conversationID]; ok && canonical.ID != "" {
		s.touchLocked(c, &canonical)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	return canonical
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

// HandleIncoming applies a message:new event. It reports whether the
// message was added or replaced a temporary one.
func (s *Store) HandleIncoming(msg models.Message) bool {
	if msg.ID == "" || msg.ConversationID == "" {
		s.log.Warn().Str("message_id", msg.ID).Msg("Dropping message without ids")
		return false
	}
	canonical := msg.Clone()
	canonical.ServerID = ""
	if canonical.CreatedAt.IsZero() {
		canonical.CreatedAt = s.now()
	}
	convID := canonical.ConversationID

	s.mu.Lock()
	thread := s.threads[convID]
	if containsID(thread, canonical.ID) {
		s.mu.Unlock()
		metrics.RecordDroppedEcho()
		return false
	}

	if canonical.SenderID == s.selfID {
		canonical.Status = models.StatusSent
		pending := temporaries(thread)
		i, strategy := s.matcher.Match(&canonical, pending)
		if i < 0 {
			s.mu.Unlock()
			metrics.RecordDroppedEcho()
			s.log.Debug().Str("message_id", canonical.ID).Msg("Own message already reconciled, dropped")
			return false
		}
		if pending[i].Status == models.StatusSending {
			s.reconciled[pending[i].ID] = canonical.ID
		}
		thread[indexByID(thread, pending[i].ID)] = &canonical
		metrics.RecordReconciliation(strategy)
	} else {
		s.threads[convID] = append(thread, &canonical)
	}

	conv, ok := s.convs[convID]
	if !ok {
		// Started by the peer; a background lookup fills it in.
		conv = &models.Conversation{
			ID:               convID,
			Participants:     []string{canonical.SenderID, s.selfID},
			FriendshipStatus: models.FriendshipNone,
		}
		s.convs[convID] = conv
		s.unresolved[convID] = true
	}
	s.touchLocked(conv, &canonical)
	if canonical.SenderID != s.selfID && convID != s.active {
		conv.UnreadCount++
	}
	refresh := !ok && !s.refreshing
	if refresh {
		s.refreshing = true
	}
	s.mu.Unlock()

	if refresh {
		go s.refreshUnresolved()
	}

	s.notify(Change{Kind: ChangeMessages, ConversationID: convID})
	if !ok {
		s.notify(Change{Kind: ChangeConversations, ConversationID: convID})
	}
	return true
}

// HandleRead applies a message:read event.
func (s *Store) HandleRead(ev models.ReadEvent) {
	s.mu.Lock()
	var m *models.Message
	if ev.ConversationID != "" {
		m = findByID(s.threads[ev.ConversationID], ev.MessageID)
	} else {
		for _, thread := range s.threads {
			if m = findByID(thread, ev.MessageID); m != nil {
				break
			}
		}
	}
	changed := m != nil && ev.UserID != "" && m.MarkReadBy(ev.UserID)
	convID := ""
	if m != nil {
		convID = m.ConversationID
	}
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeMessages, ConversationID: convID})
	}
}

// MarkRead records that the local user read messageID. Marking the newest
// message clears the unread counter.
func (s *Store) MarkRead(ctx context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	thread := s.threads[conversationID]
	m := findByID(thread, messageID)
	if m == nil || m.IsTemporary() {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	m.MarkReadBy(s.selfID)
	if c, ok := s.convs[conversationID]; ok && thread[len(thread)-1] == m {
		c.UnreadCount = 0
	}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})

	if s.sender.IsConnected() {
		err := s.sender.Emit(models.EventMarkRead, models.ReadPayload{MessageID: messageID, ConversationID: conversationID})
		if err == nil {
			return nil
		}
		s.log.Debug().Err(err).Str("message_id", messageID).Msg("Realtime read receipt failed, using REST")
	}
	if err := s.backend.MarkRead(ctx, messageID); err != nil {
		return fmt.Errorf("chat: mark read: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// helpers (s.mu held where noted)
// ---------------------------------------------------------------------------

// takeReconciledLocked returns the canonical copy that replaced tempID
// and forgets the mapping.
func (s *Store) takeReconciledLocked(conversationID, tempID string) (models.Message, bool) {
	id, ok := s.reconciled[tempID]
	if !ok {
		return models.Message{}, false
	}
	delete(s.reconciled, tempID)
	if m := findByID(s.threads[conversationID], id); m != nil {
		return m.Clone(), true
	}
	return models.Message{ID: id, ConversationID: conversationID, SenderID: s.selfID, Status: models.StatusSent}, true
}

// touchLocked moves the conversation summary forward to m.
func (s *Store) touchLocked(c *models.Conversation, m *models.Message) {
	if m.CreatedAt.Before(c.LastActivity) {
		return
	}
	c.LastMessage = m.Summary()
	c.LastActivity = m.CreatedAt
}

func (s *Store) removeLocked(conversationID, id string) bool {
	thread := s.threads[conversationID]
	i := indexByID(thread, id)
	if i < 0 {
		return false
	}
	s.threads[conversationID] = append(thread[:i:i], thread[i+1:]...)
	return true
}

func (s *Store) notify(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), len(s.listeners))
	for i, l := range s.listeners {
		fns[i] = l.fn
	}
	s.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Msg("Chat listener panicked")
				}
			}()
			fn(c)
		}()
	}
}

func temporaries(thread []*models.Message) []*models.Message {
	var out []*models.Message
	for _, m := range thread {
		if m.IsTemporary() {
			out = append(out, m)
		}
	}
	return out
}

func indexByID(thread []*models.Message, id string) int {
	for i, m := range thread {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func findByID(thread []*models.Message, id string) *models.Message {
	if i := indexByID(thread, id); i >= 0 {
		return thread[i]
	}
	return nil
}

func containsID(thread []*models.Message, id string) bool {
	return indexByID(thread, id) >= 0
}
