// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/spacezone-realtime/internal/metrics"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
	"github.com/tomtom215/spacezone-realtime/internal/validation"
)

// errInvalid marks malformed or invalid payloads.
var errInvalid = errors.New("invalid payload")

// handlerFunc handles one inbound event. result is the ack data when the
// frame asked for one; after, when set, runs once the ack is queued.
type handlerFunc func(h *Hub, c *Client, data json.RawMessage) (result any, after func(), err error)

var handlers = map[string]handlerFunc{
	models.EventJoinConversation:  handleJoin,
	models.EventLeaveConversation: handleLeave,
	models.EventSendMessage:       handleSendMessage,
	models.EventTyping:            handleTyping,
	models.EventMarkRead:          handleMarkRead,
	models.EventCallOffer:         handleCallOffer,
	models.EventCallAnswer: forwardCall(models.EventCallAnswer, func(p *models.CallAnswer) (*string, *string) {
		return &p.To, &p.From
	}),
	models.EventCallICECandidate: forwardCall(models.EventCallICECandidate, func(p *models.CallCandidate) (*string, *string) {
		return &p.To, &p.From
	}),
	models.EventCallDecline: forwardCall(models.EventCallDecline, callEndAddr),
	models.EventCallEnd:     forwardCall(models.EventCallEnd, callEndAddr),
}

func callEndAddr(p *models.CallEnd) (*string, *string) { return &p.To, &p.From }

// dispatch runs the handler for env on the client's read goroutine.
func (h *Hub) dispatch(c *Client, env *transport.Envelope) {
	fn, ok := handlers[env.Event]
	if !ok {
		metrics.RecordRelayEvent("unknown", "invalid")
		c.ack(env.ID, nil, "unknown event "+env.Event)
		return
	}

	result, after, err := fn(h, c, env.Data)
	switch {
	case err == nil:
		metrics.RecordRelayEvent(env.Event, "ok")
		c.ack(env.ID, result, "")
		if after != nil {
			after()
		}
	case errors.Is(err, errInvalid):
		metrics.RecordRelayEvent(env.Event, "invalid")
		h.log.Debug().Err(err).Str("event", env.Event).Str("user_id", c.userID).Msg("relay event invalid")
		c.ack(env.ID, nil, err.Error())
	default:
		metrics.RecordRelayEvent(env.Event, "rejected")
		h.log.Debug().Err(err).Str("event", env.Event).Str("user_id", c.userID).Msg("relay event rejected")
		c.ack(env.ID, nil, err.Error())
	}
}

// decode parses and validates an inbound payload.
func decode[T any](data json.RawMessage) (*T, error) {
	var p T
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing data", errInvalid)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalid, err)
	}
	if verr := validation.ValidateStruct(&p); verr != nil {
		return nil, fmt.Errorf("%w: %s", errInvalid, verr.Error())
	}
	return &p, nil
}

// member loads the conversation and checks c's user takes part in it.
func (h *Hub) member(c *Client, conversationID string) (models.Conversation, error) {
	ctx, cancel := c.opContext()
	defer cancel()
	conv, err := h.store.Conversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(c.userID) {
		return models.Conversation{}, ErrNotMember
	}
	return conv, nil
}

func handleJoin(h *Hub, c *Client, data json.RawMessage) (any, func(), error) {
	p, err := decode[models.JoinPayload](data)
	if err != nil {
		return nil, nil, err
	}
	if _, err := h.member(c, p.ConversationID); err != nil {
		return nil, nil, err
	}
	h.join(c, p.ConversationID)
	return nil, nil, nil
}

func handleLeave(h *Hub, c *Client, data json.RawMessage) (any, func(), error) {
	p, err := decode[models.JoinPayload](data)
	if err != nil {
		return nil, nil, err
	}
	h.leave(c, p.ConversationID)
	return nil, nil, nil
}

func handleSendMessage(h *Hub, c *Client, data json.RawMessage) (any, func(), error) {
	p, err := decode[models.SendMessagePayload](data)
	if err != nil {
		return nil, nil, err
	}
	conv, err := h.member(c, p.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conv.FriendshipStatus.CanSend() {
		return nil, nil, fmt.Errorf("conversation is %s", conv.FriendshipStatus)
	}
	typ := p.Type
	if typ == "" {
		typ = models.MessageText
	}

	ctx, cancel := c.opContext()
	defer cancel()
	msg, err := h.store.AppendMessage(ctx, models.Message{
		ClientID:       p.ClientMessageID,
		ConversationID: conv.ID,
		SenderID:       c.userID,
		Content:        p.Content,
		Type:           typ,
	})
	if err != nil {
		return nil, nil, err
	}

	created := msg.CreatedAt
	ack := models.SendMessageAck{MessageID: msg.ID, CreatedAt: &created}
	return ack, func() { h.toConversation(conv, models.EventMessageNew, msg) }, nil
}

func handleTyping(h *Hub, c *Client, data json.RawMessage) (any, func(), error) {
	p, err := decode[models.TypingPayload](data)
	if err != nil {
		return nil, nil, err
	}
	if !h.inRoom(c, p.ConversationID) {
		return nil, nil, ErrNotMember
	}
	event := models.EventUserStopTyping
	if p.IsTyping {
		event = models.EventUserTyping
	}
	h.toRoom(p.ConversationID, c, event, models.TypingEvent{ConversationID: p.ConversationID, UserID: c.userID})
	return nil, nil, nil
}

func handleMarkRead(h *Hub, c *Client, data json.RawMessage) (any, func(), error) {
	p, err := decode[models.ReadPayload](data)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := c.opContext()
	defer cancel()
	msg, err := h.store.MarkRead(ctx, p.MessageID, c.userID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := h.member(c, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	h.toConversation(conv, models.EventMessageRead, models.ReadEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         c.userID,
	})
	return nil, nil, nil
}

func handleCallOffer(h *Hub, c *Client, data json.RawMessage) (any, func(), error) {
	p, err := decode[models.CallOffer](data)
	if err != nil {
		return nil, nil, err
	}
	to := strings.TrimSpace(p.To)
	if to == "" || to == c.userID {
		return nil, nil, fmt.Errorf("%w: bad recipient", errInvalid)
	}
	p.To, p.From = "", c.userID
	if h.toUser(to, models.EventCallIncoming, p) == 0 {
		c.emit(models.EventCallError, models.CallEnd{CallID: p.CallID, From: to, Reason: models.ReasonUserOffline})
	}
	return nil, nil, nil
}

// forwardCall relays a signaling event to its recipient under the same
// name, with from set to the sender.
func forwardCall[T any](event string, addr func(*T) (to, from *string)) handlerFunc {
	return func(h *Hub, c *Client, data json.RawMessage) (any, func(), error) {
		p, err := decode[T](data)
		if err != nil {
			return nil, nil, err
		}
		to, from := addr(p)
		recipient := strings.TrimSpace(*to)
		if recipient == "" || recipient == c.userID {
			return nil, nil, fmt.Errorf("%w: bad recipient", errInvalid)
		}
		*to, *from = "", c.userID
		h.toUser(recipient, event, p)
		return nil, nil, nil
	}
}
