// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package presence

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/models"
)

// Emitter sends fire-and-forget events.
type Emitter interface {
	Emit(event string, payload any) error
}

type burst struct {
	timer *time.Timer
}

// TypingEmitter turns keystrokes into typing start/stop events, one start
// per burst of input.
type TypingEmitter struct {
	idle time.Duration
	out  Emitter
	log  zerolog.Logger

	mu     sync.Mutex
	bursts map[string]*burst
	closed bool
}

// NewTypingEmitter creates an emitter sending through out.
func NewTypingEmitter(cfg Config, out Emitter) *TypingEmitter {
	cfg.applyDefaults()
	return &TypingEmitter{
		idle:   cfg.TypingIdle,
		out:    out,
		log:    logging.WithComponent("typing"),
		bursts: make(map[string]*burst),
	}
}

// Keystroke records input in conversationID.
func (e *TypingEmitter) Keystroke(conversationID string) {
	if conversationID == "" {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if b, ok := e.bursts[conversationID]; ok && b.timer.Reset(e.idle) {
		e.mu.Unlock()
		return
	}
	// No burst, or its timer already fired and is about to emit the stop.
	b := &burst{}
	b.timer = time.AfterFunc(e.idle, func() { e.finish(conversationID, b) })
	e.bursts[conversationID] = b
	e.mu.Unlock()

	e.send(conversationID, true)
}

// Sent ends the burst because the message was sent.
func (e *TypingEmitter) Sent(conversationID string) {
	e.Stop(conversationID)
}

// Stop ends the burst in conversationID now, if one is running.
func (e *TypingEmitter) Stop(conversationID string) {
	e.finish(conversationID, nil)
}

// Close stops all bursts without emitting.
func (e *TypingEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for id, b := range e.bursts {
		b.timer.Stop()
		delete(e.bursts, id)
	}
}

func (e *TypingEmitter) finish(conversationID string, want *burst) {
	e.mu.Lock()
	b, ok := e.bursts[conversationID]
	if !ok || (want != nil && b != want) {
		e.mu.Unlock()
		return
	}
	b.timer.Stop()
	delete(e.bursts, conversationID)
	e.mu.Unlock()

	e.send(conversationID, false)
}

func (e *TypingEmitter) send(conversationID string, typing bool) {
	err := e.out.Emit(models.EventTyping, models.TypingPayload{
		ConversationID: conversationID,
		IsTyping:       typing,
	})
	if err != nil {
		e.log.Debug().Err(err).Str("conversation_id", conversationID).Bool("typing", typing).Msg("Typing signal not sent")
	}
}
