// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/metrics"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

type clientSet map[*Client]struct{}

// Hub tracks connected clients, their users and conversation rooms.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	store Store
	log   zerolog.Logger

	quit     chan struct{}
	quitOnce sync.Once

	mu      sync.RWMutex
	clients clientSet
	users   map[string]clientSet
	rooms   map[string]clientSet
}

// NewHub creates a hub persisting through store.
func NewHub(store Store) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		store:      store,
		log:        logging.WithComponent("relay-hub"),
		quit:       make(chan struct{}),
		clients:    make(clientSet),
		users:      make(map[string]clientSet),
		rooms:      make(map[string]clientSet),
	}
}

// RunWithContext serves registrations until ctx is done, then closes every
// client. It may be restarted.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Shutdown first, then lifecycle events.
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case c := <-h.Register:
			h.register(c)
		case c := <-h.Unregister:
			h.unregister(c)
		}
	}
}

// Close releases clients blocked on a hub that no longer runs.
func (h *Hub) Close() {
	h.quitOnce.Do(func() { close(h.quit) })
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	n := h.ClientCount()
	h.closeAllClients()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}
	h.log.Info().
		Str("reason", string(reason)).
		Int("clients_closed", n).
		Msg("relay hub stopped")
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	conns, ok := h.users[c.userID]
	if !ok {
		conns = make(clientSet)
		h.users[c.userID] = conns
	}
	first := len(conns) == 0
	conns[c] = struct{}{}

	online := make([]string, 0, len(h.users))
	for id := range h.users {
		if id != c.userID {
			online = append(online, id)
		}
	}
	metrics.SetRelayClients(len(h.clients))
	h.mu.Unlock()
	close(c.registered)

	sort.Strings(online)
	if len(online) > 0 {
		c.emit(models.EventUserOnline, models.PresenceEvent{UserIDs: online})
	}
	if first {
		h.broadcast(models.EventUserOnline, models.PresenceEvent{UserID: c.userID}, c.userID)
	}

	if err := h.putUser(c); err != nil {
		h.log.Warn().Err(err).Str("user_id", c.userID).Msg("failed to record user")
	}
	h.log.Info().Str("user_id", c.userID).Int("total_clients", h.ClientCount()).Msg("relay client connected")
}

func (h *Hub) putUser(c *Client) error {
	ctx, cancel := c.opContext()
	defer cancel()
	name := c.username
	if name == "" {
		name = c.userID
	}
	return h.store.PutUser(ctx, models.User{ID: c.userID, Username: name})
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	last := false
	if conns := h.users[c.userID]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
			last = true
		}
	}
	for id, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, id)
		}
	}
	metrics.SetRelayClients(len(h.clients))
	metrics.SetRelayRooms(len(h.rooms))
	h.mu.Unlock()

	c.closeSend()
	if last {
		h.broadcast(models.EventUserOffline, models.PresenceEvent{UserID: c.userID}, "")
	}
	h.log.Info().Str("user_id", c.userID).Int("total_clients", h.ClientCount()).Msg("relay client disconnected")
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := sortedClients(h.clients)
	h.clients = make(clientSet)
	h.users = make(map[string]clientSet)
	h.rooms = make(map[string]clientSet)
	metrics.SetRelayClients(0)
	metrics.SetRelayRooms(0)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
}

// sortedClients orders a set by client id.
func sortedClients(set clientSet) []*Client {
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsOnline reports whether userID has a connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// RoomMembers returns the user ids joined to a conversation room.
func (h *Hub) RoomMembers(conversationID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for c := range h.rooms[conversationID] {
		if !seen[c.userID] {
			seen[c.userID] = true
			out = append(out, c.userID)
		}
	}
	sort.Strings(out)
	return out
}

func (h *Hub) join(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(clientSet)
		h.rooms[conversationID] = members
	}
	members[c] = struct{}{}
	metrics.SetRelayRooms(len(h.rooms))
}

func (h *Hub) leave(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	metrics.SetRelayRooms(len(h.rooms))
}

func (h *Hub) inRoom(c *Client, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

// collect gathers targets under the read lock.
func (h *Hub) collect(fn func(add func(clientSet))) []*Client {
	set := make(clientSet)
	add := func(s clientSet) {
		for c := range s {
			set[c] = struct{}{}
		}
	}
	h.mu.RLock()
	fn(add)
	h.mu.RUnlock()
	return sortedClients(set)
}

// fanout sends one encoded frame to targets, skipping except.
func (h *Hub) fanout(targets []*Client, except *Client, event string, payload any) int {
	env, err := transport.NewEnvelope(event, 0, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("relay encode failed")
		return 0
	}
	frame, err := marshalEnvelope(env)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("relay encode failed")
		return 0
	}
	n := 0
	for _, c := range targets {
		if c != except && c.enqueue(frame) {
			n++
		}
	}
	return n
}

// broadcast sends to every client except those of exceptUser.
func (h *Hub) broadcast(event string, payload any, exceptUser string) {
	targets := h.collect(func(add func(clientSet)) {
		for id, conns := range h.users {
			if id != exceptUser {
				add(conns)
			}
		}
	})
	h.fanout(targets, nil, event, payload)
}

// toUser sends to every connection of userID and reports how many took it.
func (h *Hub) toUser(userID, event string, payload any) int {
	targets := h.collect(func(add func(clientSet)) { add(h.users[userID]) })
	return h.fanout(targets, nil, event, payload)
}

// toRoom sends to the room members except the sending client.
func (h *Hub) toRoom(conversationID string, except *Client, event string, payload any) {
	targets := h.collect(func(add func(clientSet)) { add(h.rooms[conversationID]) })
	h.fanout(targets, except, event, payload)
}

// toConversation sends to the room and to every participant connection
// outside it, once per connection.
func (h *Hub) toConversation(conv models.Conversation, event string, payload any) {
	targets := h.collect(func(add func(clientSet)) {
		add(h.rooms[conv.ID])
		for _, p := range conv.Participants {
			add(h.users[p])
		}
	})
	h.fanout(targets, nil, event, payload)
}

func marshalEnvelope(env *transport.Envelope) ([]byte, error) {
	return json.Marshal(env)
}
