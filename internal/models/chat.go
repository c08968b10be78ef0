// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package models

import (
	"strings"
	"time"
)

// TempIDPrefix marks client-generated message ids awaiting reconciliation.
const TempIDPrefix = "temp_"

// MaxMessageLength is the longest message content accepted.
const MaxMessageLength = 5000

// FriendshipStatus gates whether a conversation permits sending.
type FriendshipStatus string

const (
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipBlocked  FriendshipStatus = "blocked"
	FriendshipRejected FriendshipStatus = "rejected"
	FriendshipNone     FriendshipStatus = "none"
)

// CanSend reports whether messages may be sent under this status.
func (f FriendshipStatus) CanSend() bool {
	return f == FriendshipAccepted
}

// MessageType is the kind of message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageShare MessageType = "share"
	MessageImage MessageType = "image"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageShare, MessageImage:
		return true
	}
	return false
}

// MessageStatus is the client-side delivery status of a message.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Message is one chat message. Messages received from the server carry an
// empty Status, treated as sent.
type Message struct {
	ID             string        `json:"id"`
	ClientID       string        `json:"clientMessageId,omitempty"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	CreatedAt      time.Time     `json:"createdAt"`
	ReadBy         []string      `json:"readBy,omitempty"`
	Status         MessageStatus `json:"status,omitempty"`

	// ServerID is the id acknowledged for a temporary message before its
	// echo arrives. Client side only.
	ServerID string `json:"-"`
}

// IsTemporary reports whether the message still carries a client id.
func (m *Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// Clone returns a deep copy.
func (m *Message) Clone() Message {
	c := *m
	if m.ReadBy != nil {
		c.ReadBy = append([]string(nil), m.ReadBy...)
	}
	return c
}

// MarkReadBy adds userID to the read receipts. It reports whether the set changed.
func (m *Message) MarkReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return false
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// Summary returns the conversation preview form of the message.
func (m *Message) Summary() *MessageSummary {
	return &MessageSummary{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		CreatedAt: m.CreatedAt,
	}
}

// MessageSummary is the last-message preview of a conversation.
type MessageSummary struct {
	ID        string      `json:"id"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Conversation is a one-to-one chat.
type Conversation struct {
	ID               string           `json:"id"`
	Participants     []string         `json:"participants"`
	LastMessage      *MessageSummary  `json:"lastMessage,omitempty"`
	LastActivity     time.Time        `json:"lastActivity"`
	FriendshipStatus FriendshipStatus `json:"friendshipStatus"`
	UnreadCount      int              `json:"unreadCount"`
}

// Peer returns the participant that is not selfID, or "" when none is.
func (c *Conversation) Peer(selfID string) string {
	for _, p := range c.Participants {
		if p != selfID {
			return p
		}
	}
	return ""
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *Conversation) Clone() Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return cp
}

// User is a user search result.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}
