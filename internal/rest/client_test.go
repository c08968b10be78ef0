// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func ok(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	writeJSON(t, w, http.StatusOK, models.APIResponse{Success: true, Data: raw})
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}, transport.StaticToken("tok"))
}

func TestListConversations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/chat/conversations" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		ok(t, w, []models.Conversation{
			{ID: "c1", Participants: []string{"alice", "bob"}, FriendshipStatus: models.FriendshipAccepted},
		})
	})

	convs, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "c1" || convs[0].FriendshipStatus != models.FriendshipAccepted {
		t.Errorf("conversations = %+v", convs)
	}
}

func TestListMessagesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/conversations/c%201/messages" && r.URL.Path != "/api/chat/conversations/c 1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("limit") != "30" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		ok(t, w, []models.Message{{ID: "m1", ConversationID: "c 1", Content: "hi"}})
	})

	msgs, err := c.ListMessages(context.Background(), "c 1", 2, 30)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSendMessageBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var p models.SendMessagePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		if p.Content != "hello" || p.ClientMessageID != "temp_1" {
			t.Errorf("payload = %+v", p)
		}
		ok(t, w, models.Message{ID: "m9", ClientID: p.ClientMessageID, ConversationID: p.ConversationID, Content: p.Content})
	})

	msg, err := c.SendMessage(context.Background(), models.SendMessagePayload{
		ConversationID:  "c1",
		Content:         "hello",
		Type:            models.MessageText,
		ClientMessageID: "temp_1",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "m9" || msg.ClientID != "temp_1" {
		t.Errorf("message = %+v", msg)
	}
}

func TestMarkReadAndSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/chat/messages/m1/read":
			writeJSON(t, w, http.StatusOK, models.APIResponse{Success: true})
		case r.Method == http.MethodGet && r.URL.Path == "/api/users/search":
			if r.URL.Query().Get("q") != "bo" {
				t.Errorf("q = %q", r.URL.Query().Get("q"))
			}
			ok(t, w, []models.User{{ID: "bob", Username: "bob"}})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	if err := c.MarkRead(context.Background(), "m1"); err != nil {
		t.Errorf("MarkRead: %v", err)
	}
	users, err := c.SearchUsers(context.Background(), "bo")
	if err != nil || len(users) != 1 || users[0].ID != "bob" {
		t.Errorf("SearchUsers = %+v, %v", users, err)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantCode    string
		wantMessage string
		unauth      bool
	}{
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"success":false,"error":"token expired"}`,
			wantStatus: 401, wantMessage: "token expired", unauth: true,
		},
		{
			name:       "object error",
			status:     http.StatusNotFound,
			body:       `{"success":false,"error":{"code":"NOT_FOUND","message":"conversation not found"}}`,
			wantStatus: 404, wantCode: "NOT_FOUND", wantMessage: "conversation not found",
		},
		{
			name:       "success false on 200",
			status:     http.StatusOK,
			body:       `{"success":false,"error":"not friends"}`,
			wantStatus: 200, wantMessage: "not friends",
		},
		{
			name:       "plain text 500",
			status:     http.StatusInternalServerError,
			body:       `oops`,
			wantStatus: 500, wantMessage: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ListConversations(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != tt.wantStatus || apiErr.Code != tt.wantCode || apiErr.Message != tt.wantMessage {
				t.Errorf("APIError = %+v", apiErr)
			}
			if got := errors.Is(err, ErrUnauthorized); got != tt.unauth {
				t.Errorf("errors.Is(ErrUnauthorized) = %v, want %v", got, tt.unauth)
			}
		})
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		if _, err := c.ListConversations(context.Background()); errors.Is(err, ErrUnavailable) {
			t.Fatalf("breaker open after %d requests", i)
		}
	}
	_, err := c.ListConversations(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("server hits = %d, want 5", got)
	}
}

func TestClientErrorsDoNotOpenBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"error":"forbidden"}`))
	})

	for i := 0; i < 8; i++ {
		if _, err := c.ListConversations(context.Background()); errors.Is(err, ErrUnavailable) {
			t.Fatalf("4xx opened the breaker at request %d", i)
		}
	}
}

func TestCredentialErrorSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, transport.StaticToken(""))
	if _, err := c.ListConversations(context.Background()); !errors.Is(err, transport.ErrAuthRequired) {
		t.Errorf("err = %v, want ErrAuthRequired", err)
	}
	if hits.Load() != 0 {
		t.Error("request sent without a credential")
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RateLimitRPS: 0.01, RateLimitBurst: 1}, transport.StaticToken("tok"))
	if _, err := c.ListConversations(context.Background()); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.ListConversations(ctx); err == nil {
		t.Error("expected the limiter to refuse a request it cannot admit before the deadline")
	}
}
