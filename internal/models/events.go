// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Client to server events.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTyping            = "typing"
	EventMarkRead          = "message_read"
	EventCallOffer         = "call:offer"
)

// Server to client events.
const (
	EventMessageNew     = "message:new"
	EventMessageRead    = "message:read"
	EventUserTyping     = "user:typing"
	EventUserStopTyping = "user:stop_typing"
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
	EventCallIncoming   = "call:incoming"
)

// Call events used in both directions.
const (
	EventCallAnswer       = "call:answer"
	EventCallICECandidate = "call:ice-candidate"
	EventCallDecline      = "call:decline"
	EventCallEnd          = "call:end"
	EventCallError        = "call:error"
)

// JoinPayload is the body of join_conversation and leave_conversation.
type JoinPayload struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
}

// SendMessagePayload is the body of send_message.
type SendMessagePayload struct {
	ConversationID  string      `json:"conversationId" validate:"required,max=128"`
	Content         string      `json:"content" validate:"required,notblank,max=5000"`
	Type            MessageType `json:"type" validate:"omitempty,oneof=text share image"`
	ClientMessageID string      `json:"clientMessageId,omitempty" validate:"omitempty,max=128"`
}

// SendMessageAck is the acknowledgement of send_message. Exactly one of
// MessageID and Error is set.
type SendMessageAck struct {
	MessageID string     `json:"messageId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TypingPayload is the body of the outbound typing event.
type TypingPayload struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
	IsTyping       bool   `json:"isTyping"`
}

// TypingEvent is the body of user:typing and user:stop_typing.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// ReadPayload is the body of the outbound message_read event.
type ReadPayload struct {
	MessageID      string `json:"messageId" validate:"required,max=128"`
	ConversationID string `json:"conversationId,omitempty" validate:"omitempty,max=128"`
}

// ReadEvent is the body of message:read.
type ReadEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// PresenceEvent is the body of user:online and user:offline. UserIDs is
// set on the snapshot sent to a newly connected client.
type PresenceEvent struct {
	UserID  string   `json:"userId,omitempty"`
	UserIDs []string `json:"userIds,omitempty"`
}

// CallType is audio or video.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// Valid reports whether t is a known call type.
func (t CallType) Valid() bool {
	return t == CallAudio || t == CallVideo
}

// CallOffer is the body of call:offer (To set) and call:incoming (From set).
type CallOffer struct {
	CallID   string          `json:"callId" validate:"required,max=128"`
	To       string          `json:"to,omitempty"`
	From     string          `json:"from,omitempty"`
	CallType CallType        `json:"callType" validate:"required,oneof=audio video"`
	Offer    json.RawMessage `json:"offer" validate:"required"`
}

// CallAnswer is the body of call:answer.
type CallAnswer struct {
	CallID string          `json:"callId" validate:"required,max=128"`
	To     string          `json:"to,omitempty"`
	From   string          `json:"from,omitempty"`
	Answer json.RawMessage `json:"answer" validate:"required"`
}

// CallCandidate is the body of call:ice-candidate.
type CallCandidate struct {
	CallID    string          `json:"callId" validate:"required,max=128"`
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

// CallEnd is the body of call:end, call:decline and call:error.
type CallEnd struct {
	CallID string `json:"callId" validate:"required,max=128"`
	To     string `json:"to,omitempty"`
	From   string `json:"from,omitempty"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=64"`
}

// Reasons carried by CallEnd.
const (
	ReasonBusy             = "busy"
	ReasonDeclined         = "declined"
	ReasonHangup           = "hangup"
	ReasonMediaUnavailable = "media_unavailable"
	ReasonConnectionFailed = "connection_failed"
	ReasonNegotiation      = "negotiation_failed"
	ReasonUserOffline      = "user_offline"
)
