// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package transport

import (
	"sync"

	"github.com/goccy/go-json"
)

// Handler receives the raw payload of an inbound event.
type Handler func(payload json.RawMessage)

// Subscription identifies one registration made with On or OnStateChange.
// The zero value is never issued.
type Subscription struct {
	event string
	id    uint64
	state bool
}

// Event returns the event name the subscription listens to.
func (s Subscription) Event() string { return s.event }

type entry[T any] struct {
	id uint64
	fn T
}

// registry keeps handlers per key in registration order.
type registry[T any] struct {
	mu      sync.RWMutex
	entries map[string][]entry[T]
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{entries: make(map[string][]entry[T])}
}

func (r *registry[T]) add(key string, id uint64, fn T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = append(r.entries[key], entry[T]{id: id, fn: fn})
}

func (r *registry[T]) remove(key string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[key]
	for i, e := range list {
		if e.id != id {
			continue
		}
		next := make([]entry[T], 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.entries, key)
		} else {
			r.entries[key] = next
		}
		return true
	}
	return false
}

// snapshot returns the handlers for key; callers invoke them unlocked.
func (r *registry[T]) snapshot(key string) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.entries[key]
	out := make([]T, len(list))
	for i, e := range list {
		out[i] = e.fn
	}
	return out
}

func (r *registry[T]) count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[key])
}

func (r *registry[T]) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string][]entry[T])
}
