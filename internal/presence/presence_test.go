// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package presence

import (
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) add(c Change) {
	l.mu.Lock()
	l.changes = append(l.changes, c)
	l.mu.Unlock()
}

func (l *changeLog) all() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Change(nil), l.changes...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSetOnline(t *testing.T) {
	tr := NewTracker(Config{})
	defer tr.Close()
	var log changeLog
	tr.OnChange(log.add)

	tr.SetOnline("bob", true)
	tr.SetOnline("bob", true)
	tr.SetOnline("alice", true)
	tr.SetOnline("bob", false)

	if tr.IsOnline("bob") || !tr.IsOnline("alice") {
		t.Errorf("online = %v", tr.OnlineUsers())
	}
	if got := len(log.all()); got != 3 {
		t.Errorf("changes = %d, want 3 (repeat online is not a change)", got)
	}
}

func TestSetOnlineUsersReplacesSnapshot(t *testing.T) {
	tr := NewTracker(Config{})
	defer tr.Close()
	tr.SetOnline("old", true)
	tr.SetOnline("kept", true)

	var log changeLog
	tr.OnChange(log.add)
	tr.SetOnlineUsers([]string{"kept", "new", ""})

	if got, want := tr.OnlineUsers(), []string{"kept", "new"}; !reflect.DeepEqual(got, want) {
		t.Errorf("OnlineUsers = %v, want %v", got, want)
	}
	want := []Change{
		{Kind: ChangePresence, UserID: "new", Online: true},
		{Kind: ChangePresence, UserID: "old", Online: false},
	}
	if got := log.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("changes = %+v, want %+v", got, want)
	}
}

func TestTypingLifecycle(t *testing.T) {
	tr := NewTracker(Config{TypingExpiry: time.Minute})
	defer tr.Close()
	var log changeLog
	off := tr.OnChange(log.add)

	tr.TypingStarted("c1", "bob")
	tr.TypingStarted("c1", "bob")
	tr.TypingStarted("c1", "alice")
	tr.TypingStarted("c2", "bob")

	if got := tr.TypingUsers("c1"); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("TypingUsers(c1) = %v", got)
	}

	tr.TypingStopped("c1", "alice")
	tr.ClearTyping("c1", "bob")
	if got := tr.TypingUsers("c1"); len(got) != 0 {
		t.Errorf("TypingUsers(c1) = %v, want empty", got)
	}
	if got := tr.TypingUsers("c2"); !reflect.DeepEqual(got, []string{"bob"}) {
		t.Errorf("clearing c1 touched c2: %v", got)
	}

	if got := len(log.all()); got != 5 {
		t.Errorf("changes = %d, want 5", got)
	}
	off()
	tr.TypingStopped("c2", "bob")
	if got := len(log.all()); got != 5 {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestTypingExpires(t *testing.T) {
	tr := NewTracker(Config{TypingExpiry: 30 * time.Millisecond})
	defer tr.Close()
	var log changeLog
	tr.OnChange(log.add)

	tr.TypingStarted("c1", "bob")
	waitFor(t, "typing expiry", func() bool { return len(tr.TypingUsers("c1")) == 0 })

	changes := log.all()
	if len(changes) != 2 || !changes[0].Typing || changes[1].Typing {
		t.Errorf("changes = %+v, want start then stop", changes)
	}
}

func TestTypingRefreshExtendsExpiry(t *testing.T) {
	tr := NewTracker(Config{TypingExpiry: 80 * time.Millisecond})
	defer tr.Close()

	tr.TypingStarted("c1", "bob")
	time.Sleep(50 * time.Millisecond)
	tr.TypingStarted("c1", "bob")
	time.Sleep(50 * time.Millisecond)

	if got := tr.TypingUsers("c1"); len(got) != 1 {
		t.Errorf("refreshed indicator expired early: %v", got)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []models.TypingPayload
	err    error
}

func (r *recorder) Emit(event string, payload any) error {
	if event != models.EventTyping {
		return errors.New("unexpected event " + event)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, payload.(models.TypingPayload))
	return r.err
}

func (r *recorder) all() []models.TypingPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TypingPayload(nil), r.events...)
}

func TestTypingEmitterOneStartPerBurst(t *testing.T) {
	rec := &recorder{}
	em := NewTypingEmitter(Config{TypingIdle: 40 * time.Millisecond}, rec)
	defer em.Close()

	for i := 0; i < 5; i++ {
		em.Keystroke("c1")
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, "idle stop", func() bool { return len(rec.all()) == 2 })

	want := []models.TypingPayload{
		{ConversationID: "c1", IsTyping: true},
		{ConversationID: "c1", IsTyping: false},
	}
	if got := rec.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}

	em.Keystroke("c1")
	if got := rec.all(); len(got) != 3 || !got[2].IsTyping {
		t.Errorf("new burst did not start: %+v", got)
	}
}

func TestTypingEmitterSentStopsImmediately(t *testing.T) {
	rec := &recorder{}
	em := NewTypingEmitter(Config{TypingIdle: time.Minute}, rec)
	defer em.Close()

	em.Keystroke("c1")
	em.Sent("c1")
	em.Sent("c1")
	em.Stop("c2")

	want := []models.TypingPayload{
		{ConversationID: "c1", IsTyping: true},
		{ConversationID: "c1", IsTyping: false},
	}
	if got := rec.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestTypingEmitterCloseIsSilent(t *testing.T) {
	rec := &recorder{}
	em := NewTypingEmitter(Config{TypingIdle: 20 * time.Millisecond}, rec)

	em.Keystroke("c1")
	em.Close()
	em.Keystroke("c2")
	time.Sleep(50 * time.Millisecond)

	if got := rec.all(); len(got) != 1 {
		t.Errorf("events after close = %+v", got)
	}
}
