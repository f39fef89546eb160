// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/tstamp"
)

var (
	// ErrEditNotAllowed is returned when the edit target is missing, still
	// awaiting confirmation, or not authored by the caller.
	ErrEditNotAllowed = errors.New("state: message cannot be edited")

	// ErrDeleteNotAllowed is the delete counterpart of ErrEditNotAllowed.
	ErrDeleteNotAllowed = errors.New("state: message cannot be deleted")
)

// provisionalIDPrefix marks client-assigned message ids. Backend ids never
// carry it, so a provisional entry and its confirmed echo cannot collide.
const provisionalIDPrefix = "temp-"

// MessageStore holds the message sequence for exactly one conversation.
// The store is tagged with the conversation key it is scoped to; pushes
// for any other scope are dropped, which covers a push racing a rapid
// conversation switch. Confirmed and provisional messages are kept in
// separate sets so that edit and delete can only ever target confirmed
// entries.
type MessageStore struct {
	mu        sync.RWMutex
	scope     string
	confirmed map[string]chatdb.Message
	pending   map[string]chatdb.Message
	// order tracks arrival order across both sets for stable sorting.
	order []string
}

// NewMessageStore returns an empty, unscoped MessageStore.
func NewMessageStore() *MessageStore {
	s := &MessageStore{}
	s.reset("")
	return s
}

// Scope returns the conversation key the store is currently bound to, or
// empty when no conversation is selected.
func (s *MessageStore) Scope() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// Reset clears the store and binds it to a new conversation key. An empty
// scope leaves the store empty and dropping all pushes.
func (s *MessageStore) Reset(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(scope)
}

func (s *MessageStore) reset(scope string) {
	s.scope = scope
	s.confirmed = map[string]chatdb.Message{}
	s.pending = map[string]chatdb.Message{}
	s.order = nil
}

// ReplaceAll replaces the full message set with a subscription push.
// Returns false when the push is for a different scope and was dropped.
// Provisional entries are discarded: the push is the authoritative state,
// and a confirmed send arrives through it.
func (s *MessageStore) ReplaceAll(scope string, msgs []chatdb.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scope == "" || scope != s.scope {
		return false
	}
	s.reset(scope)
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, ok := s.confirmed[m.ID]; !ok {
			s.order = append(s.order, m.ID)
		}
		m.Provisional = false
		s.confirmed[m.ID] = m
	}
	return true
}

// AppendOptimistic adds a provisional message for a send attempt and
// returns its temporary id for rollback. The timestamp is a wall-clock
// placeholder that the confirmed echo replaces.
func (s *MessageStore) AppendOptimistic(text, senderKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := tstamp.Now()
	tempID := provisionalIDPrefix + uuid.NewString()
	s.pending[tempID] = chatdb.Message{
		ID:          tempID,
		Text:        text,
		Sender:      senderKey,
		Timestamp:   &now,
		Provisional: true,
	}
	s.order = append(s.order, tempID)
	return tempID
}

// RemoveOptimistic deletes a provisional message unconditionally, used
// when its send failed.
func (s *MessageStore) RemoveOptimistic(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[tempID]; !ok {
		return
	}
	delete(s.pending, tempID)
	s.removeFromOrder(tempID)
}

// ApplyEdit sets a confirmed message's text and marks it edited. Fails
// with ErrEditNotAllowed when the target is provisional or absent.
func (s *MessageStore) ApplyEdit(messageID, newText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[messageID]; ok {
		return ErrEditNotAllowed
	}
	m, ok := s.confirmed[messageID]
	if !ok {
		return ErrEditNotAllowed
	}
	now := tstamp.Now()
	m.Text = newText
	m.Edited = true
	m.EditedAt = &now
	s.confirmed[messageID] = m
	return nil
}

// ApplyDelete removes a confirmed message. Fails with ErrDeleteNotAllowed
// when the target is provisional or absent.
func (s *MessageStore) ApplyDelete(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[messageID]; ok {
		return ErrDeleteNotAllowed
	}
	if _, ok := s.confirmed[messageID]; !ok {
		return ErrDeleteNotAllowed
	}
	delete(s.confirmed, messageID)
	s.removeFromOrder(messageID)
	return nil
}

// Restore reinserts a confirmed message, used to roll back a local edit or
// delete whose backend call failed.
func (s *MessageStore) Restore(m chatdb.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" || m.Provisional {
		return
	}
	if _, ok := s.confirmed[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.confirmed[m.ID] = m
}

// Get returns a message by id, confirmed or provisional.
func (s *MessageStore) Get(messageID string) (chatdb.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.confirmed[messageID]; ok {
		return m, true
	}
	m, ok := s.pending[messageID]
	return m, ok
}

// Len returns the number of messages including provisional ones.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.confirmed) + len(s.pending)
}

// LatestConfirmed returns the confirmed message with the greatest
// timestamp. Provisional messages never count: a summary must not reflect
// a message the backend has not acknowledged.
func (s *MessageStore) LatestConfirmed() (chatdb.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest chatdb.Message
	found := false
	for _, id := range s.order {
		m, ok := s.confirmed[id]
		if !ok {
			continue
		}
		if !found || !messageTimestamp(m).Before(messageTimestamp(latest)) {
			latest = m
			found = true
		}
	}
	return latest, found
}

// SortedByTime returns all messages ascending by timestamp seconds. A
// missing timestamp sorts as zero; provisional placeholders carry the
// current wall clock, keeping unconfirmed sends last.
func (s *MessageStore) SortedByTime() []chatdb.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chatdb.Message, 0, len(s.order))
	for _, id := range s.order {
		if m, ok := s.confirmed[id]; ok {
			out = append(out, m)
		} else if m, ok := s.pending[id]; ok {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return messageSeconds(out[i]) < messageSeconds(out[j])
	})
	return out
}

func (s *MessageStore) removeFromOrder(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func messageSeconds(m chatdb.Message) int64 {
	if m.Timestamp == nil {
		return 0
	}
	return m.Timestamp.Seconds
}

func messageTimestamp(m chatdb.Message) tstamp.Timestamp {
	if m.Timestamp == nil {
		return tstamp.Timestamp{}
	}
	return *m.Timestamp
}
