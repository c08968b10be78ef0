// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestAPIErrorAcceptsStringAndObject(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantMsg  string
	}{
		{"object", `{"success":false,"error":{"code":"NOT_FOUND","message":"gone"}}`, "NOT_FOUND", "gone"},
		{"string", `{"success":false,"error":"Not friends"}`, "", "Not friends"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp APIResponse
			if err := json.Unmarshal([]byte(tt.body), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Success {
				t.Error("expected success=false")
			}
			if resp.Error == nil {
				t.Fatal("expected error member")
			}
			if resp.Error.Code != tt.wantCode || resp.Error.Message != tt.wantMsg {
				t.Errorf("got %+v, want code=%q message=%q", resp.Error, tt.wantCode, tt.wantMsg)
			}
		})
	}
}

func TestConversationPeer(t *testing.T) {
	c := Conversation{ID: "c1", Participants: []string{"alice", "bob"}}

	if got := c.Peer("alice"); got != "bob" {
		t.Errorf("Peer(alice) = %q, want bob", got)
	}
	if !c.HasParticipant("bob") || c.HasParticipant("carol") {
		t.Error("HasParticipant mismatch")
	}

	clone := c.Clone()
	clone.Participants[0] = "mallory"
	if c.Participants[0] != "alice" {
		t.Error("Clone must not share the participants slice")
	}
}

func TestMessageHelpers(t *testing.T) {
	m := Message{ID: TempIDPrefix + "1", Content: "hi"}
	if !m.IsTemporary() {
		t.Error("expected temp message")
	}
	if !m.MarkReadBy("bob") || m.MarkReadBy("bob") {
		t.Error("MarkReadBy should report a change exactly once")
	}

	m.ID = "srv-1"
	if m.IsTemporary() {
		t.Error("server id must not be temporary")
	}
	if s := m.Summary(); s.ID != "srv-1" || s.Content != "hi" {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestFriendshipAndTypes(t *testing.T) {
	if !FriendshipAccepted.CanSend() {
		t.Error("accepted must allow sending")
	}
	for _, f := range []FriendshipStatus{FriendshipPending, FriendshipBlocked, FriendshipRejected, FriendshipNone} {
		if f.CanSend() {
			t.Errorf("%s must not allow sending", f)
		}
	}
	if !MessageShare.Valid() || MessageType("video").Valid() {
		t.Error("MessageType.Valid mismatch")
	}
	if !CallVideo.Valid() || CallType("screen").Valid() {
		t.Error("CallType.Valid mismatch")
	}
}
