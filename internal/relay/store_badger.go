// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/spacezone-realtime/internal/models"
)

// Key layout. Message keys embed a sequence number so prefix iteration
// yields conversation order.
const (
	convKeyPrefix   = "conv:"
	pairKeyPrefix   = "pair:"
	memberKeyPrefix = "member:"
	msgKeyPrefix    = "msg:"
	msgRefKeyPrefix = "msgref:"
	userKeyPrefix   = "user:"

	msgSequenceKey = "seq:msg"
)

// BadgerStore persists relay state in BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

// OpenBadgerStore opens or creates a store at path. An empty path opens
// an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	seq, err := db.GetSequence([]byte(msgSequenceKey), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq, now: time.Now}, nil
}

func msgPrefix(conversationID string) []byte {
	return []byte(msgKeyPrefix + conversationID + ":")
}

func msgKey(conversationID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", msgKeyPrefix, conversationID, seq))
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func (s *BadgerStore) CreateConversation(_ context.Context, a, b string) (models.Conversation, error) {
	var out models.Conversation
	err := s.db.Update(func(txn *badger.Txn) error {
		pk := []byte(pairKeyPrefix + pairKey(a, b))
		item, err := txn.Get(pk)
		switch {
		case err == nil:
			var id []byte
			if id, err = item.ValueCopy(nil); err != nil {
				return err
			}
			return getJSON(txn, []byte(convKeyPrefix+string(id)), &out)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		out = newConversation(a, b, s.now())
		if err := setJSON(txn, []byte(convKeyPrefix+out.ID), out); err != nil {
			return err
		}
		if err := txn.Set(pk, []byte(out.ID)); err != nil {
			return err
		}
		for _, p := range out.Participants {
			if err := txn.Set([]byte(memberKeyPrefix+p+":"+out.ID), []byte(out.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) Conversation(_ context.Context, id string) (models.Conversation, error) {
	var out models.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(convKeyPrefix+id), &out)
	})
	return out, err
}

func (s *BadgerStore) ListConversations(_ context.Context, userID string) ([]models.Conversation, error) {
	var out []models.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(memberKeyPrefix + userID + ":")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var c models.Conversation
			if err := getJSON(txn, []byte(convKeyPrefix+string(id)), &c); err != nil {
				return err
			}
			msgs, err := scanMessages(txn, c.ID)
			if err != nil {
				return err
			}
			c.UnreadCount = unreadFor(userID, msgs)
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	sortConversations(out)
	return out, nil
}

func scanMessages(txn *badger.Txn, conversationID string) ([]models.Message, error) {
	prefix := msgPrefix(conversationID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []models.Message
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var m models.Message
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *BadgerStore) AppendMessage(_ context.Context, msg models.Message) (models.Message, error) {
	n, err := s.seq.Next()
	if err != nil {
		return models.Message{}, fmt.Errorf("message sequence: %w", err)
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now().UTC()
	msg.Status = ""
	msg.ServerID = ""

	err = s.db.Update(func(txn *badger.Txn) error {
		ck := []byte(convKeyPrefix + msg.ConversationID)
		var c models.Conversation
		if err := getJSON(txn, ck, &c); err != nil {
			return err
		}
		key := msgKey(msg.ConversationID, n)
		if err := setJSON(txn, key, msg); err != nil {
			return err
		}
		if err := txn.Set([]byte(msgRefKeyPrefix+msg.ID), key); err != nil {
			return err
		}
		c.LastMessage = msg.Summary()
		c.LastActivity = msg.CreatedAt
		return setJSON(txn, ck, c)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *BadgerStore) ListMessages(_ context.Context, conversationID string, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 30
	}
	skip := (page - 1) * limit

	var out []models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var c models.Conversation
		if err := getJSON(txn, []byte(convKeyPrefix+conversationID), &c); err != nil {
			return err
		}

		prefix := msgPrefix(conversationID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			if skip > 0 {
				skip--
				continue
			}
			var m models.Message
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Collected newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *BadgerStore) MarkRead(_ context.Context, messageID, userID string) (models.Message, error) {
	var out models.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(msgRefKeyPrefix + messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := getJSON(txn, key, &out); err != nil {
			return err
		}
		var c models.Conversation
		if err := getJSON(txn, []byte(convKeyPrefix+out.ConversationID), &c); err != nil {
			return err
		}
		if !c.HasParticipant(userID) {
			return ErrNotMember
		}
		if !out.MarkReadBy(userID) {
			return nil
		}
		return setJSON(txn, key, out)
	})
	if err != nil {
		return models.Message{}, err
	}
	return out, nil
}

func (s *BadgerStore) PutUser(_ context.Context, u models.User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, []byte(userKeyPrefix+u.ID), u)
	})
}

func (s *BadgerStore) SearchUsers(_ context.Context, query string, limit int) ([]models.User, error) {
	var out []models.User
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userKeyPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var u models.User
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &u) }); err != nil {
				return err
			}
			if matchUser(u, query) {
				out = append(out, u)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close releases the sequence and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("release sequence: %w", err)
	}
	return s.db.Close()
}
