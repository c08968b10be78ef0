// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"badger": func(t *testing.T) Store {
			s, err := OpenBadgerStore(t.TempDir())
			if err != nil {
				t.Fatalf("OpenBadgerStore: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreConversations(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			c1, err := s.CreateConversation(ctx, "alice", "bob")
			if err != nil {
				t.Fatalf("CreateConversation: %v", err)
			}
			again, err := s.CreateConversation(ctx, "bob", "alice")
			if err != nil || again.ID != c1.ID {
				t.Fatalf("second create = %+v, %v; want id %s", again, err, c1.ID)
			}
			if c1.FriendshipStatus != models.FriendshipAccepted {
				t.Errorf("status = %q", c1.FriendshipStatus)
			}
			if _, err := s.CreateConversation(ctx, "alice", "carol"); err != nil {
				t.Fatal(err)
			}

			list, err := s.ListConversations(ctx, "alice")
			if err != nil || len(list) != 2 {
				t.Fatalf("alice conversations = %+v, %v", list, err)
			}
			list, _ = s.ListConversations(ctx, "bob")
			if len(list) != 1 || list[0].ID != c1.ID {
				t.Errorf("bob conversations = %+v", list)
			}
			if _, err := s.Conversation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing conversation err = %v", err)
			}
		})
	}
}

func TestStoreMessages(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			conv, _ := s.CreateConversation(ctx, "alice", "bob")

			var ids []string
			for i := 0; i < 5; i++ {
				m, err := s.AppendMessage(ctx, models.Message{
					ConversationID: conv.ID,
					SenderID:       "alice",
					Content:        fmt.Sprintf("m%d", i),
					Type:           models.MessageText,
					ClientID:       fmt.Sprintf("temp_%d", i),
				})
				if err != nil {
					t.Fatalf("AppendMessage: %v", err)
				}
				if m.ID == "" || m.CreatedAt.IsZero() || m.ClientID != fmt.Sprintf("temp_%d", i) {
					t.Fatalf("stored = %+v", m)
				}
				ids = append(ids, m.ID)
			}

			tests := []struct {
				page, limit int
				want        []string
			}{
				{page: 1, limit: 2, want: ids[3:5]},
				{page: 2, limit: 2, want: ids[1:3]},
				{page: 3, limit: 2, want: ids[0:1]},
				{page: 4, limit: 2, want: nil},
				{page: 1, limit: 30, want: ids},
			}
			for _, tt := range tests {
				got, err := s.ListMessages(ctx, conv.ID, tt.page, tt.limit)
				if err != nil {
					t.Fatalf("ListMessages(%d, %d): %v", tt.page, tt.limit, err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("ListMessages(%d, %d) = %d messages, want %d", tt.page, tt.limit, len(got), len(tt.want))
				}
				for i := range got {
					if got[i].ID != tt.want[i] {
						t.Errorf("ListMessages(%d, %d)[%d] = %s, want %s", tt.page, tt.limit, i, got[i].ID, tt.want[i])
					}
				}
			}

			c, _ := s.Conversation(ctx, conv.ID)
			if c.LastMessage == nil || c.LastMessage.ID != ids[4] {
				t.Errorf("last message = %+v", c.LastMessage)
			}
			if _, err := s.AppendMessage(ctx, models.Message{ConversationID: "missing"}); !errors.Is(err, ErrNotFound) {
				t.Errorf("append to missing conversation = %v", err)
			}
		})
	}
}

func TestStoreReadReceipts(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			conv, _ := s.CreateConversation(ctx, "alice", "bob")
			m1, _ := s.AppendMessage(ctx, models.Message{ConversationID: conv.ID, SenderID: "alice", Content: "a"})
			_, _ = s.AppendMessage(ctx, models.Message{ConversationID: conv.ID, SenderID: "alice", Content: "b"})

			list, _ := s.ListConversations(ctx, "bob")
			if list[0].UnreadCount != 2 {
				t.Errorf("bob unread = %d, want 2", list[0].UnreadCount)
			}

			got, err := s.MarkRead(ctx, m1.ID, "bob")
			if err != nil || len(got.ReadBy) != 1 || got.ReadBy[0] != "bob" {
				t.Fatalf("MarkRead = %+v, %v", got, err)
			}
			if again, _ := s.MarkRead(ctx, m1.ID, "bob"); len(again.ReadBy) != 1 {
				t.Errorf("repeated receipt = %v", again.ReadBy)
			}
			list, _ = s.ListConversations(ctx, "bob")
			if list[0].UnreadCount != 1 {
				t.Errorf("bob unread = %d, want 1", list[0].UnreadCount)
			}
			if list, _ := s.ListConversations(ctx, "alice"); list[0].UnreadCount != 0 {
				t.Errorf("sender unread = %d, want 0", list[0].UnreadCount)
			}

			if _, err := s.MarkRead(ctx, m1.ID, "mallory"); !errors.Is(err, ErrNotMember) {
				t.Errorf("outsider receipt = %v, want ErrNotMember", err)
			}
			if _, err := s.MarkRead(ctx, "missing", "bob"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing message = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreUsers(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			for _, u := range []models.User{
				{ID: "u1", Username: "bobby"},
				{ID: "u2", Username: "Bob"},
				{ID: "u3", Username: "carol", DisplayName: "Carol B"},
			} {
				if err := s.PutUser(ctx, u); err != nil {
					t.Fatal(err)
				}
			}

			got, err := s.SearchUsers(ctx, "bob", 0)
			if err != nil || len(got) != 2 || got[0].ID != "u1" || got[1].ID != "u2" {
				t.Errorf("search bob = %+v, %v", got, err)
			}
			if got, _ := s.SearchUsers(ctx, "b", 1); len(got) != 1 {
				t.Errorf("limited search = %+v", got)
			}
		})
	}
}
