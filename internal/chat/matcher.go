// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package chat

import (
	"time"

	"github.com/tomtom215/spacezone-realtime/internal/models"
)

// Matcher finds the temporary message a server message confirms.
//
// pending holds the unreconciled temporary messages of the conversation in
// send order. Match returns the index into pending and a strategy name for
// metrics, or -1 when nothing matches.
type Matcher interface {
	Match(msg *models.Message, pending []*models.Message) (int, string)
}

// IDMatcher matches on identifiers: the id bound from the send
// acknowledgement, or the client id echoed back by the server.
type IDMatcher struct{}

// Match implements Matcher.
func (IDMatcher) Match(msg *models.Message, pending []*models.Message) (int, string) {
	for i, p := range pending {
		if p.ServerID != "" && p.ServerID == msg.ID {
			return i, "ack_id"
		}
		if msg.ClientID != "" && msg.ClientID == p.ID {
			return i, "client_id"
		}
	}
	return -1, ""
}

// HeuristicMatcher matches on sender, type and content with creation times
// less than Window apart. The oldest candidate wins, so identical messages
// sent in quick succession reconcile in send order.
type HeuristicMatcher struct {
	Window time.Duration
}

// Match implements Matcher.
func (h HeuristicMatcher) Match(msg *models.Message, pending []*models.Message) (int, string) {
	for i, p := range pending {
		if p.SenderID != msg.SenderID || p.Content != msg.Content {
			continue
		}
		// Identified messages are known to be something else.
		if (p.ServerID != "" && p.ServerID != msg.ID) || (msg.ClientID != "" && msg.ClientID != p.ID) {
			continue
		}
		if p.Type != "" && msg.Type != "" && p.Type != msg.Type {
			continue
		}
		d := msg.CreatedAt.Sub(p.CreatedAt)
		if d < 0 {
			d = -d
		}
		if d < h.Window {
			return i, "heuristic"
		}
	}
	return -1, ""
}

// ChainMatcher tries each matcher in turn.
type ChainMatcher []Matcher

// Match implements Matcher.
func (c ChainMatcher) Match(msg *models.Message, pending []*models.Message) (int, string) {
	for _, m := range c {
		if i, strategy := m.Match(msg, pending); i >= 0 {
			return i, strategy
		}
	}
	return -1, ""
}

// DefaultMatcher prefers identifiers and falls back to the heuristic.
func DefaultMatcher(window time.Duration) Matcher {
	return ChainMatcher{IDMatcher{}, HeuristicMatcher{Window: window}}
}
