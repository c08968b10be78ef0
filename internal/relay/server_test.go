// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package relay

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
)

const testSecret = "relay-test-secret-0123456789abcdef"

type testRelay struct {
	srv   *httptest.Server
	auth  *Authenticator
	hub   *Hub
	store Store
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	auth, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	store := NewMemoryStore()
	hub := NewHub(store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()

	srv := httptest.NewServer(NewServer(ServerConfig{DevTokens: true}, auth, hub, store))
	t.Cleanup(func() {
		cancel()
		<-done
		hub.Close()
		srv.Close()
	})
	return &testRelay{srv: srv, auth: auth, hub: hub, store: store}
}

func (r *testRelay) token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := r.auth.Issue(userID, userID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (r *testRelay) do(t *testing.T, method, path, token string, body any) (int, models.APIResponse) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, r.srv.URL+path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env models.APIResponse
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	next uint64
}

func (r *testRelay) dial(t *testing.T, userID string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token(t, userID))
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	// Registration completes on the hub goroutine after the upgrade.
	deadline := time.Now().Add(2 * time.Second)
	for !r.hub.IsOnline(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("%s never registered", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, payload any, withAck bool) uint64 {
	c.t.Helper()
	var id uint64
	if withAck {
		c.next++
		id = c.next
	}
	env, err := transport.NewEnvelope(event, id, payload)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.conn.WriteJSON(env); err != nil {
		c.t.Fatalf("write %s: %v", event, err)
	}
	return id
}

func (c *wsClient) read() *transport.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	env, err := transport.DecodeEnvelope(raw)
	if err != nil {
		c.t.Fatal(err)
	}
	return env
}

// expect reads frames until event arrives, skipping presence noise.
func (c *wsClient) expect(event string) *transport.Envelope {
	c.t.Helper()
	for i := 0; i < 20; i++ {
		env := c.read()
		if env.Event == event {
			return env
		}
		if env.Event != models.EventUserOnline && env.Event != models.EventUserOffline {
			c.t.Fatalf("got %s %s, want %s", env.Event, env.Data, event)
		}
	}
	c.t.Fatalf("no %s frame", event)
	return nil
}

// quiet asserts nothing but presence arrives within d.
func (c *wsClient) quiet(d time.Duration) {
	c.t.Helper()
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(d))
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, _ := transport.DecodeEnvelope(raw)
		if env != nil && env.Event != models.EventUserOnline && env.Event != models.EventUserOffline {
			c.t.Fatalf("unexpected frame %s %s", env.Event, env.Data)
		}
	}
}

func decodeData[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestAuthRequired(t *testing.T) {
	r := newTestRelay(t)

	if status, env := r.do(t, http.MethodGet, "/api/chat/conversations", "", nil); status != http.StatusUnauthorized || env.Error == nil || env.Error.Code != models.ErrCodeUnauthorized {
		t.Errorf("no token = %d %+v", status, env)
	}
	if status, _ := r.do(t, http.MethodGet, "/api/chat/conversations", "garbage", nil); status != http.StatusUnauthorized {
		t.Errorf("bad token = %d", status)
	}

	url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("websocket without token: err=%v resp=%v", err, resp)
	}

	if status, _ := r.do(t, http.MethodGet, "/healthz", "", nil); status != http.StatusOK {
		t.Errorf("healthz = %d", status)
	}
}

func TestDevToken(t *testing.T) {
	r := newTestRelay(t)
	status, env := r.do(t, http.MethodPost, "/api/dev/token", "", models.TokenRequest{UserID: "alice"})
	if status != http.StatusOK || !env.Success {
		t.Fatalf("dev token = %d %+v", status, env)
	}
	tok := decodeData[models.TokenResponse](t, env.Data)
	claims, err := transport.InspectToken(tok.Token, time.Now())
	if err != nil || claims.UserID != "alice" {
		t.Errorf("issued token claims = %+v, %v", claims, err)
	}

	if status, env := r.do(t, http.MethodPost, "/api/dev/token", "", map[string]string{}); status != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("empty request = %d %+v", status, env)
	}
}

func TestRESTConversationFlow(t *testing.T) {
	r := newTestRelay(t)
	alice, bob := r.token(t, "alice"), r.token(t, "bob")

	status, env := r.do(t, http.MethodPost, "/api/chat/conversations", alice, models.CreateConversationRequest{ParticipantID: "bob"})
	if status != http.StatusOK {
		t.Fatalf("create = %d %+v", status, env.Error)
	}
	conv := decodeData[models.Conversation](t, env.Data)

	status, env = r.do(t, http.MethodPost, "/api/chat/conversations/"+conv.ID+"/messages", alice,
		models.SendMessagePayload{ConversationID: conv.ID, Content: "hello", ClientMessageID: "temp_x"})
	if status != http.StatusOK {
		t.Fatalf("send = %d %+v", status, env.Error)
	}
	msg := decodeData[models.Message](t, env.Data)
	if msg.ID == "" || msg.ClientID != "temp_x" || msg.SenderID != "alice" || msg.Type != models.MessageText {
		t.Errorf("message = %+v", msg)
	}

	_, env = r.do(t, http.MethodGet, "/api/chat/conversations", bob, nil)
	list := decodeData[[]models.Conversation](t, env.Data)
	if len(list) != 1 || list[0].UnreadCount != 1 || list[0].LastMessage.ID != msg.ID {
		t.Errorf("bob conversations = %+v", list)
	}

	if status, _ := r.do(t, http.MethodPut, "/api/chat/messages/"+msg.ID+"/read", bob, nil); status != http.StatusOK {
		t.Errorf("mark read = %d", status)
	}
	_, env = r.do(t, http.MethodGet, "/api/chat/conversations/"+conv.ID+"/messages?page=1&limit=10", bob, nil)
	msgs := decodeData[[]models.Message](t, env.Data)
	if len(msgs) != 1 || len(msgs[0].ReadBy) != 1 || msgs[0].ReadBy[0] != "bob" {
		t.Errorf("history = %+v", msgs)
	}

	carol := r.token(t, "carol")
	if status, _ := r.do(t, http.MethodGet, "/api/chat/conversations/"+conv.ID+"/messages", carol, nil); status != http.StatusForbidden {
		t.Errorf("outsider history = %d, want 403", status)
	}
	if status, _ := r.do(t, http.MethodGet, "/api/chat/conversations/nope/messages", alice, nil); status != http.StatusNotFound {
		t.Errorf("missing conversation = %d, want 404", status)
	}
	if status, _ := r.do(t, http.MethodPost, "/api/chat/conversations", alice, models.CreateConversationRequest{ParticipantID: "alice"}); status != http.StatusBadRequest {
		t.Errorf("self conversation = %d, want 400", status)
	}
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	r := newTestRelay(t)
	for _, id := range []string{"bob", "bobby"} {
		r.do(t, http.MethodPost, "/api/dev/token", "", models.TokenRequest{UserID: id})
	}
	_, env := r.do(t, http.MethodGet, "/api/users/search?q=bob", r.token(t, "bob"), nil)
	users := decodeData[[]models.User](t, env.Data)
	if len(users) != 1 || users[0].ID != "bobby" {
		t.Errorf("search = %+v", users)
	}
}

func setupConversation(t *testing.T, r *testRelay) models.Conversation {
	t.Helper()
	conv, err := r.store.CreateConversation(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	return conv
}

func TestPresence(t *testing.T) {
	r := newTestRelay(t)
	alice := r.dial(t, "alice")
	bob := r.dial(t, "bob")

	env := alice.expect(models.EventUserOnline)
	if p := decodeData[models.PresenceEvent](t, env.Data); p.UserID != "bob" {
		t.Errorf("alice saw %+v", p)
	}
	env = bob.expect(models.EventUserOnline)
	if p := decodeData[models.PresenceEvent](t, env.Data); len(p.UserIDs) != 1 || p.UserIDs[0] != "alice" {
		t.Errorf("bob snapshot = %+v", p)
	}

	_ = bob.conn.Close()
	env = alice.expect(models.EventUserOffline)
	if p := decodeData[models.PresenceEvent](t, env.Data); p.UserID != "bob" {
		t.Errorf("offline = %+v", p)
	}
}

func TestSendMessageAckThenBroadcast(t *testing.T) {
	r := newTestRelay(t)
	conv := setupConversation(t, r)
	alice := r.dial(t, "alice")
	bob := r.dial(t, "bob")

	id := alice.send(models.EventJoinConversation, models.JoinPayload{ConversationID: conv.ID}, true)
	if env := alice.expect(transport.AckEvent); env.ID != id || env.Error != "" {
		t.Fatalf("join ack = %+v", env)
	}

	id = alice.send(models.EventSendMessage, models.SendMessagePayload{ConversationID: conv.ID, Content: "hi", ClientMessageID: "temp_1"}, true)
	ackEnv := alice.expect(transport.AckEvent)
	if ackEnv.ID != id || ackEnv.Error != "" {
		t.Fatalf("send ack = %+v", ackEnv)
	}
	ack := decodeData[models.SendMessageAck](t, ackEnv.Data)
	if ack.MessageID == "" || ack.CreatedAt == nil {
		t.Fatalf("ack = %+v", ack)
	}

	echo := decodeData[models.Message](t, alice.expect(models.EventMessageNew).Data)
	if echo.ID != ack.MessageID || echo.ClientID != "temp_1" {
		t.Errorf("echo = %+v", echo)
	}
	// Bob is not in the room but takes part in the conversation.
	got := decodeData[models.Message](t, bob.expect(models.EventMessageNew).Data)
	if got.ID != ack.MessageID || got.SenderID != "alice" {
		t.Errorf("bob got %+v", got)
	}
}

func TestEventRejections(t *testing.T) {
	r := newTestRelay(t)
	conv := setupConversation(t, r)
	carol := r.dial(t, "carol")

	tests := []struct {
		name    string
		event   string
		payload any
		want    string
	}{
		{name: "join outsider", event: models.EventJoinConversation, payload: models.JoinPayload{ConversationID: conv.ID}, want: "not a participant"},
		{name: "send outsider", event: models.EventSendMessage, payload: models.SendMessagePayload{ConversationID: conv.ID, Content: "x"}, want: "not a participant"},
		{name: "blank content", event: models.EventSendMessage, payload: models.SendMessagePayload{ConversationID: conv.ID, Content: "   "}, want: "invalid payload"},
		{name: "unknown event", event: "bogus", payload: map[string]string{}, want: "unknown event"},
		{name: "missing conversation", event: models.EventSendMessage, payload: models.SendMessagePayload{ConversationID: "nope", Content: "x"}, want: "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := carol.send(tt.event, tt.payload, true)
			env := carol.expect(transport.AckEvent)
			if env.ID != id || !strings.Contains(env.Error, tt.want) {
				t.Errorf("ack = %+v, want error containing %q", env, tt.want)
			}
		})
	}
}

func TestTypingGoesToRoomExceptSender(t *testing.T) {
	r := newTestRelay(t)
	conv := setupConversation(t, r)
	alice := r.dial(t, "alice")
	bob := r.dial(t, "bob")
	for _, c := range []*wsClient{alice, bob} {
		c.send(models.EventJoinConversation, models.JoinPayload{ConversationID: conv.ID}, true)
		c.expect(transport.AckEvent)
	}

	alice.send(models.EventTyping, models.TypingPayload{ConversationID: conv.ID, IsTyping: true}, false)
	ev := decodeData[models.TypingEvent](t, bob.expect(models.EventUserTyping).Data)
	if ev.UserID != "alice" || ev.ConversationID != conv.ID {
		t.Errorf("typing = %+v", ev)
	}
	alice.send(models.EventTyping, models.TypingPayload{ConversationID: conv.ID, IsTyping: false}, false)
	bob.expect(models.EventUserStopTyping)
	alice.quiet(100 * time.Millisecond)
}

func TestCallSignalingForwarding(t *testing.T) {
	r := newTestRelay(t)
	alice := r.dial(t, "alice")
	bob := r.dial(t, "bob")

	alice.send(models.EventCallOffer, models.CallOffer{
		CallID: "call-1", To: "bob", CallType: models.CallVideo, Offer: json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	}, false)
	in := decodeData[models.CallOffer](t, bob.expect(models.EventCallIncoming).Data)
	if in.From != "alice" || in.To != "" || in.CallID != "call-1" || in.CallType != models.CallVideo {
		t.Errorf("incoming = %+v", in)
	}

	bob.send(models.EventCallAnswer, models.CallAnswer{CallID: "call-1", To: "alice", Answer: json.RawMessage(`{"type":"answer","sdp":"v=0"}`)}, false)
	if ans := decodeData[models.CallAnswer](t, alice.expect(models.EventCallAnswer).Data); ans.From != "bob" {
		t.Errorf("answer = %+v", ans)
	}

	alice.send(models.EventCallICECandidate, models.CallCandidate{CallID: "call-1", To: "bob", Candidate: json.RawMessage(`{"candidate":"c"}`)}, false)
	bob.expect(models.EventCallICECandidate)

	bob.send(models.EventCallEnd, models.CallEnd{CallID: "call-1", To: "alice", Reason: models.ReasonHangup}, false)
	if end := decodeData[models.CallEnd](t, alice.expect(models.EventCallEnd).Data); end.From != "bob" || end.Reason != models.ReasonHangup {
		t.Errorf("end = %+v", end)
	}
}

func TestCallOfferToOfflineUser(t *testing.T) {
	r := newTestRelay(t)
	alice := r.dial(t, "alice")

	alice.send(models.EventCallOffer, models.CallOffer{
		CallID: "call-2", To: "nobody", CallType: models.CallAudio, Offer: json.RawMessage(`{}`),
	}, false)
	ev := decodeData[models.CallEnd](t, alice.expect(models.EventCallError).Data)
	if ev.CallID != "call-2" || ev.Reason != models.ReasonUserOffline {
		t.Errorf("call error = %+v", ev)
	}
}
