// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	sendQueueSize = 256
	storeTimeout  = 5 * time.Second
)

// clientIDCounter orders clients for deterministic fan-out.
var clientIDCounter atomic.Uint64

// Client is one authenticated websocket connection.
type Client struct {
	id       uint64
	userID   string
	username string
	hub      *Hub
	conn     *websocket.Conn

	registered chan struct{}

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a client for userID on conn.
func NewClient(hub *Hub, conn *websocket.Conn, userID, username string) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		userID:   userID,
		username: username,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),

		registered: make(chan struct{}),
	}
}

// ID returns the client's ordering id.
func (c *Client) ID() uint64 { return c.id }

// UserID returns the authenticated user.
func (c *Client) UserID() string { return c.userID }

// enqueue queues a frame. A client whose queue is full is closed.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		logging.Warn().Uint64("client_id", c.id).Str("user_id", c.userID).Msg("relay client send queue full, closing")
		c.closed = true
		close(c.send)
		return false
	}
}

// emit encodes and queues one event frame.
func (c *Client) emit(event string, payload any) bool {
	env, err := transport.NewEnvelope(event, 0, payload)
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("relay encode failed")
		return false
	}
	return c.enqueueEnvelope(env)
}

// ack answers the frame with id. errMsg non-empty sends a rejection.
func (c *Client) ack(id uint64, payload any, errMsg string) {
	if id == 0 {
		return
	}
	env := &transport.Envelope{Event: transport.AckEvent, ID: id, Error: errMsg}
	if errMsg == "" {
		data, err := transport.EncodePayload(payload)
		if err != nil {
			env.Error = "internal error"
		} else {
			env.Data = data
		}
	}
	c.enqueueEnvelope(env)
}

func (c *Client) enqueueEnvelope(env *transport.Envelope) bool {
	frame, err := marshalEnvelope(env)
	if err != nil {
		logging.Error().Err(err).Str("event", env.Event).Msg("relay encode failed")
		return false
	}
	return c.enqueue(frame)
}

// closeSend stops the write pump. It is idempotent.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// readPump dispatches inbound frames until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.quit:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// Client keepalive pings count as activity too.
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("user_id", c.userID).Msg("unexpected websocket close error")
			}
			return
		}
		env, err := transport.DecodeEnvelope(raw)
		if err != nil {
			logging.Debug().Err(err).Str("user_id", c.userID).Msg("relay dropped malformed frame")
			continue
		}
		c.hub.dispatch(c, env)
	}
}

// writePump drains the send queue and pings the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Str("user_id", c.userID).Msg("relay write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Run registers the client and serves it until the connection ends. It
// blocks on the read pump.
func (c *Client) Run(ctx context.Context) {
	select {
	case c.hub.Register <- c:
	case <-ctx.Done():
		_ = c.conn.Close()
		return
	case <-c.hub.quit:
		_ = c.conn.Close()
		return
	}
	<-c.registered

	go c.writePump()
	c.readPump()
}
