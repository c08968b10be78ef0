// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/spacezone-realtime/internal/config"
	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/metrics"
	"github.com/tomtom215/spacezone-realtime/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
)

// Config configures a Manager.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	AckTimeout       time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	Reconnect        Policy
}

// ConfigFrom converts the koanf transport section.
func ConfigFrom(c config.TransportConfig) Config {
	return Config{
		URL:              c.URL,
		HandshakeTimeout: c.HandshakeTimeout,
		AckTimeout:       c.AckTimeout,
		PingInterval:     c.PingInterval,
		ReadTimeout:      c.ReadTimeout,
		Reconnect: Policy{
			Initial:  c.ReconnectInitial,
			Max:      c.ReconnectMax,
			Attempts: c.ReconnectAttempts,
		},
	}
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadTimeout <= c.PingInterval {
		c.ReadTimeout = 2 * c.PingInterval
	}
	if c.Reconnect.Initial <= 0 {
		c.Reconnect = DefaultPolicy
	}
	if c.Reconnect.Max < c.Reconnect.Initial {
		c.Reconnect.Max = c.Reconnect.Initial
	}
}

type ackResult struct {
	data json.RawMessage
	err  error
}

type pendingAck struct {
	event string
	sent  time.Time
	ch    chan ackResult
}

// Manager is the connection manager of one authenticated session.
type Manager struct {
	cfg    Config
	cred   CredentialSource
	dialer *websocket.Dialer
	log    zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	loop   context.Context
	cancel context.CancelFunc

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	nextID  atomic.Uint64
	acksMu  sync.Mutex
	pending map[uint64]*pendingAck

	events *registry[Handler]
	states *registry[func(StateChange)]
}

// New creates a disconnected Manager.
func New(cfg Config, cred CredentialSource) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:  cfg,
		cred: cred,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log:     logging.WithComponent("transport"),
		now:     time.Now,
		pending: make(map[uint64]*pendingAck),
		events:  newRegistry[Handler](),
		states:  newRegistry[func(StateChange)](),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether a connection is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect opens the connection. It fails fast with ErrAuthRequired or
// ErrCredentialExpired when the credential is unusable, and with
// *AuthError when the server rejects it. On a transient first-dial failure
// the error is returned and the reconnect policy keeps trying in the
// background. ctx bounds only the first dial.
func (m *Manager) Connect(ctx context.Context) error {
	token, err := m.token()
	if err != nil {
		return err
	}

	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected, StateReconnecting:
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	loop, cancel := context.WithCancel(context.Background())
	m.loop, m.cancel = loop, cancel
	change := m.setStateLocked(StateConnecting, nil, false)
	m.mu.Unlock()
	m.notify(change)

	conn, err := m.dial(ctx, token)
	switch {
	case err == nil:
		if !m.attach(loop, conn, false) {
			return ErrClosed
		}
		go m.run(loop, conn)
		return nil

	case isFatal(err) || ctx.Err() != nil:
		cancel()
		if isFatal(err) {
			m.fail(loop, err)
		} else {
			m.transition(loop, StateDisconnected, err, false)
		}
		return err

	default:
		m.log.Warn().Err(err).Msg("Initial connect failed, retrying in background")
		m.transition(loop, StateReconnecting, err, false)
		go m.run(loop, nil)
		return fmt.Errorf("connect: %w", err)
	}
}

// Disconnect closes the connection, stops reconnection, fails pending acks
// with ErrClosed and clears every listener registration. Safe to call in
// any state, including from an event handler.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, conn := m.cancel, m.conn
	m.cancel, m.conn, m.loop = nil, nil, nil
	prev := m.state
	m.state = StateDisconnected
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		m.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		m.writeMu.Unlock()
		_ = conn.Close()
	}
	m.failPending(ErrClosed)
	metrics.SetTransportState(int(StateDisconnected))
	if prev != StateDisconnected {
		m.notify(&StateChange{From: prev, To: StateDisconnected})
	}
	m.events.clear()
	m.states.clear()
	m.log.Info().Msg("Disconnected")
}

// Emit sends a fire-and-forget event.
func (m *Manager) Emit(event string, payload any) error {
	env, err := NewEnvelope(event, 0, payload)
	if err != nil {
		return err
	}
	return m.write(env)
}

// EmitWithAck sends event and waits for its acknowledgement. It returns
// the ack payload, *AckError on explicit rejection, ErrSendTimeout when no
// ack arrives within the ack timeout, and ErrNotConnected or a write error
// when the frame could not be sent at all.
func (m *Manager) EmitWithAck(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	if !m.IsConnected() {
		return nil, ErrNotConnected
	}

	id := m.nextID.Add(1)
	env, err := NewEnvelope(event, id, payload)
	if err != nil {
		return nil, err
	}

	p := &pendingAck{event: event, sent: m.now(), ch: make(chan ackResult, 1)}
	m.acksMu.Lock()
	m.pending[id] = p
	m.acksMu.Unlock()

	if err := m.write(env); err != nil {
		m.dropPending(id)
		return nil, err
	}

	timer := time.NewTimer(m.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case res := <-p.ch:
		return res.data, res.err
	case <-timer.C:
		m.dropPending(id)
		metrics.RecordAck("timeout", m.cfg.AckTimeout)
		m.log.Warn().Str("event", event).Uint64("ack_id", id).Msg("Acknowledgement timed out")
		return nil, ErrSendTimeout
	case <-ctx.Done():
		m.dropPending(id)
		return nil, ctx.Err()
	}
}

// JoinRoom subscribes to a conversation room. It is a no-op returning
// false when not connected.
func (m *Manager) JoinRoom(conversationID string) bool {
	return m.roomEvent(models.EventJoinConversation, conversationID)
}

// LeaveRoom leaves a conversation room. It is a no-op returning false
// when not connected.
func (m *Manager) LeaveRoom(conversationID string) bool {
	return m.roomEvent(models.EventLeaveConversation, conversationID)
}

func (m *Manager) roomEvent(event, conversationID string) bool {
	if !m.IsConnected() {
		m.log.Debug().Str("event", event).Str("conversation_id", conversationID).Msg("Room event skipped, not connected")
		return false
	}
	if err := m.Emit(event, models.JoinPayload{ConversationID: conversationID}); err != nil {
		m.log.Debug().Err(err).Str("event", event).Msg("Room event not sent")
		return false
	}
	return true
}

// On registers h for event. Handlers for one event run in registration order.
func (m *Manager) On(event string, h Handler) Subscription {
	id := m.nextID.Add(1)
	m.events.add(event, id, h)
	return Subscription{event: event, id: id}
}

// OnStateChange registers fn for connection state changes.
func (m *Manager) OnStateChange(fn func(StateChange)) Subscription {
	id := m.nextID.Add(1)
	m.states.add("", id, fn)
	return Subscription{id: id, state: true}
}

// Off removes a registration. It reports whether it was still registered.
func (m *Manager) Off(sub Subscription) bool {
	if sub.id == 0 {
		return false
	}
	if sub.state {
		return m.states.remove("", sub.id)
	}
	return m.events.remove(sub.event, sub.id)
}

// ListenerCount returns the number of handlers registered for event.
func (m *Manager) ListenerCount(event string) int {
	return m.events.count(event)
}

func (m *Manager) token() (string, error) {
	if m.cred == nil {
		return "", ErrAuthRequired
	}
	raw, err := m.cred.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	if _, err := InspectToken(raw, m.now()); err != nil {
		return "", err
	}
	return raw, nil
}

func (m *Manager) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	m.log.Info().Str("url", m.cfg.URL).Msg("Connecting")
	conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Status: resp.StatusCode}
		}
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// attach installs conn unless the loop was stopped meanwhile.
func (m *Manager) attach(loop context.Context, conn *websocket.Conn, reconnected bool) bool {
	m.mu.Lock()
	if loop.Err() != nil || m.loop != loop {
		m.mu.Unlock()
		_ = conn.Close()
		return false
	}
	m.conn = conn
	change := m.setStateLocked(StateConnected, nil, reconnected)
	m.mu.Unlock()

	m.log.Info().Bool("reconnected", reconnected).Msg("Connected")
	m.notify(change)
	return true
}

func (m *Manager) detach(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

// run serves conn (nil means start by reconnecting) until the loop stops
// or reconnection gives up.
func (m *Manager) run(loop context.Context, conn *websocket.Conn) {
	serverClosed := false
	for {
		if conn != nil {
			var err error
			serverClosed, err = m.serve(loop, conn)
			m.detach(conn)
			if loop.Err() != nil {
				return
			}
			m.log.Warn().Err(err).Bool("server_closed", serverClosed).Msg("Connection lost")
			m.transition(loop, StateReconnecting, err, false)
		}

		next, err := m.reconnect(loop, serverClosed)
		if err != nil {
			if loop.Err() == nil {
				m.fail(loop, err)
			}
			return
		}
		if !m.attach(loop, next, true) {
			return
		}
		conn = next
		serverClosed = false
	}
}

func (m *Manager) reconnect(loop context.Context, immediate bool) (*websocket.Conn, error) {
	attempt := func() (*websocket.Conn, error) {
		token, err := m.token()
		if err != nil {
			return nil, err
		}
		return m.dial(loop, token)
	}

	if immediate {
		conn, err := attempt()
		if err == nil {
			metrics.RecordReconnect("success")
			return conn, nil
		}
		if isFatal(err) {
			metrics.RecordReconnect("auth_rejected")
			return nil, err
		}
		metrics.RecordReconnect("failure")
		m.log.Warn().Err(err).Msg("Immediate reconnect failed")
	}

	for n := 1; n <= m.cfg.Reconnect.Attempts; n++ {
		delay := m.cfg.Reconnect.Delay(n)
		m.log.Info().Int("attempt", n).Dur("delay", delay).Msg("Reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-loop.Done():
			timer.Stop()
			return nil, loop.Err()
		case <-timer.C:
		}

		conn, err := attempt()
		if err == nil {
			metrics.RecordReconnect("success")
			return conn, nil
		}
		if loop.Err() != nil {
			return nil, loop.Err()
		}
		if isFatal(err) {
			metrics.RecordReconnect("auth_rejected")
			return nil, err
		}
		metrics.RecordReconnect("failure")
		m.log.Warn().Err(err).Int("attempt", n).Msg("Reconnect attempt failed")
	}

	metrics.RecordReconnect("exhausted")
	return nil, ErrReconnectExhausted
}

// serve reads frames until the connection fails. It reports whether the
// server closed the connection with a close frame.
func (m *Manager) serve(loop context.Context, conn *websocket.Conn) (bool, error) {
	stopPing := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go m.pingLoop(conn, stopPing, &wg)
	defer func() {
		close(stopPing)
		wg.Wait()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			serverClosed := errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure
			return serverClosed, err
		}
		if loop.Err() != nil {
			return false, loop.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
		metrics.RecordFrame(false)
		m.handleFrame(data)
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				m.log.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

func (m *Manager) handleFrame(data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		m.log.Warn().Err(err).Msg("Dropping malformed frame")
		return
	}

	if env.Event == AckEvent {
		m.resolveAck(env)
		return
	}

	for _, h := range m.events.snapshot(env.Event) {
		m.invoke(env.Event, h, env.Data)
	}
}

// invoke isolates handler panics so one listener cannot kill the read loop.
func (m *Manager) invoke(event string, h Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("event", event).Interface("panic", r).Msg("Event handler panicked")
		}
	}()
	h(data)
}

func (m *Manager) resolveAck(env *Envelope) {
	m.acksMu.Lock()
	p := m.pending[env.ID]
	delete(m.pending, env.ID)
	m.acksMu.Unlock()

	if p == nil {
		m.log.Debug().Uint64("ack_id", env.ID).Msg("Late or unknown acknowledgement dropped")
		return
	}

	latency := m.now().Sub(p.sent)
	if env.Error != "" {
		metrics.RecordAck("rejected", latency)
		p.ch <- ackResult{err: &AckError{Event: p.event, Message: env.Error}}
		return
	}
	metrics.RecordAck("ok", latency)
	p.ch <- ackResult{data: env.Data}
}

func (m *Manager) dropPending(id uint64) {
	m.acksMu.Lock()
	delete(m.pending, id)
	m.acksMu.Unlock()
}

func (m *Manager) failPending(err error) {
	m.acksMu.Lock()
	pending := m.pending
	m.pending = make(map[uint64]*pendingAck)
	m.acksMu.Unlock()

	for _, p := range pending {
		metrics.RecordAck("closed", 0)
		p.ch <- ackResult{err: err}
	}
}

func (m *Manager) write(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()
	if conn == nil || !connected {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", env.Event, err)
	}
	metrics.RecordFrame(true)
	return nil
}

func (m *Manager) setStateLocked(to State, err error, reconnected bool) *StateChange {
	if m.state == to && err == nil {
		return nil
	}
	change := &StateChange{From: m.state, To: to, Err: err, Reconnected: reconnected}
	m.state = to
	metrics.SetTransportState(int(to))
	return change
}

// transition changes state if loop is still the active loop.
func (m *Manager) transition(loop context.Context, to State, err error, reconnected bool) {
	m.mu.Lock()
	if m.loop != loop {
		m.mu.Unlock()
		return
	}
	change := m.setStateLocked(to, err, reconnected)
	m.mu.Unlock()
	m.notify(change)
}

func (m *Manager) fail(loop context.Context, err error) {
	m.log.Error().Err(err).Msg("Connection failed permanently")
	m.transition(loop, StateFailed, err, false)
}

func (m *Manager) notify(change *StateChange) {
	if change == nil {
		return
	}
	for _, fn := range m.states.snapshot("") {
		fn(*change)
	}
}
