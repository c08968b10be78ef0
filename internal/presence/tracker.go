// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

// Package presence tracks which users are online and who is typing where,
// and rate-shapes the local user's own typing signals.
//
// Remote typing indicators expire on their own when the server never sends
// the matching stop event. Local typing emits one start per burst and one
// stop after the input has been idle for the configured interval.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/spacezone-realtime/internal/config"
	"github.com/tomtom215/spacezone-realtime/internal/logging"
)

// Config configures a Tracker and a TypingEmitter.
type Config struct {
	TypingIdle   time.Duration
	TypingExpiry time.Duration
}

// ConfigFrom converts the application presence configuration.
func ConfigFrom(c config.PresenceConfig) Config {
	return Config{TypingIdle: c.TypingIdle, TypingExpiry: c.TypingExpiry}
}

func (c *Config) applyDefaults() {
	if c.TypingIdle <= 0 {
		c.TypingIdle = time.Second
	}
	if c.TypingExpiry <= 0 {
		c.TypingExpiry = 5 * time.Second
	}
}

// ChangeKind tells which part of the tracker changed.
type ChangeKind int

const (
	ChangePresence ChangeKind = iota
	ChangeTyping
)

// Change describes one tracker update.
type Change struct {
	Kind           ChangeKind
	UserID         string
	ConversationID string
	Online         bool
	Typing         bool
}

type typingEntry struct {
	timer *time.Timer
}

type listener struct {
	id uint64
	fn func(Change)
}

// Tracker holds online users and remote typing indicators.
type Tracker struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	online    map[string]struct{}
	typing    map[string]map[string]*typingEntry // conversation -> user
	listeners []listener
	nextID    uint64
	closed    bool
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config) *Tracker {
	cfg.applyDefaults()
	return &Tracker{
		cfg:    cfg,
		log:    logging.WithComponent("presence"),
		online: make(map[string]struct{}),
		typing: make(map[string]map[string]*typingEntry),
	}
}

// OnChange registers fn and returns its unsubscribe func. Listeners run
// on the goroutine that caused the change, including expiry timers.
func (t *Tracker) OnChange(fn func(Change)) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listener{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetOnline records a single presence transition.
func (t *Tracker) SetOnline(userID string, online bool) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	_, was := t.online[userID]
	if was == online || t.closed {
		t.mu.Unlock()
		return
	}
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	fns := t.listenersLocked()
	t.mu.Unlock()

	t.emit(fns, Change{Kind: ChangePresence, UserID: userID, Online: online})
}

// SetOnlineUsers replaces the online set with a server snapshot.
func (t *Tracker) SetOnlineUsers(userIDs []string) {
	next := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	var changes []Change
	for id := range t.online {
		if _, ok := next[id]; !ok {
			changes = append(changes, Change{Kind: ChangePresence, UserID: id, Online: false})
		}
	}
	for id := range next {
		if _, ok := t.online[id]; !ok {
			changes = append(changes, Change{Kind: ChangePresence, UserID: id, Online: true})
		}
	}
	t.online = next
	fns := t.listenersLocked()
	t.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].UserID < changes[j].UserID })
	for _, c := range changes {
		t.emit(fns, c)
	}
}

// IsOnline reports whether userID is online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// OnlineUsers returns the online users in sorted order.
func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}

// TypingStarted marks userID as typing in conversationID until a stop,
// a message from the user, or the expiry.
func (t *Tracker) TypingStarted(conversationID, userID string) {
	if conversationID == "" || userID == "" {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	users := t.typing[conversationID]
	if users == nil {
		users = make(map[string]*typingEntry)
		t.typing[conversationID] = users
	}
	old, refreshed := users[userID]
	if refreshed {
		old.timer.Stop()
	}
	entry := &typingEntry{}
	entry.timer = time.AfterFunc(t.cfg.TypingExpiry, func() { t.expire(conversationID, userID, entry) })
	users[userID] = entry
	fns := t.listenersLocked()
	t.mu.Unlock()

	if refreshed {
		return
	}
	t.emit(fns, Change{Kind: ChangeTyping, UserID: userID, ConversationID: conversationID, Typing: true})
}

// TypingStopped clears userID's indicator in conversationID.
func (t *Tracker) TypingStopped(conversationID, userID string) {
	t.clear(conversationID, userID, nil)
}

// ClearTyping is called when a message from userID arrives.
func (t *Tracker) ClearTyping(conversationID, userID string) {
	t.clear(conversationID, userID, nil)
}

// TypingUsers returns the users typing in conversationID, sorted.
func (t *Tracker) TypingUsers(conversationID string) []string {
	t.mu.Lock()
	users := t.typing[conversationID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}

// Close stops every expiry timer. The tracker ignores updates afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, users := range t.typing {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	t.typing = make(map[string]map[string]*typingEntry)
	t.listeners = nil
}

func (t *Tracker) expire(conversationID, userID string, entry *typingEntry) {
	t.log.Debug().Str("conversation_id", conversationID).Str("user_id", userID).Msg("Typing indicator expired")
	t.clear(conversationID, userID, entry)
}

// clear removes the indicator. A non-nil want only removes that exact
// entry, so a stale timer never clears a refreshed indicator.
func (t *Tracker) clear(conversationID, userID string, want *typingEntry) {
	t.mu.Lock()
	users := t.typing[conversationID]
	entry, ok := users[userID]
	if !ok || (want != nil && entry != want) {
		t.mu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(t.typing, conversationID)
	}
	fns := t.listenersLocked()
	t.mu.Unlock()

	t.emit(fns, Change{Kind: ChangeTyping, UserID: userID, ConversationID: conversationID, Typing: false})
}

func (t *Tracker) listenersLocked() []func(Change) {
	fns := make([]func(Change), len(t.listeners))
	for i, l := range t.listeners {
		fns[i] = l.fn
	}
	return fns
}

func (t *Tracker) emit(fns []func(Change), c Change) {
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.log.Error().Interface("panic", r).Msg("Presence listener panicked")
				}
			}()
			fn(c)
		}()
	}
}
