// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package state holds the client-side chat state: the conversation list,
// the active conversation's messages, and the reconciliation rules that
// keep the denormalized last-message summaries consistent with the
// message sequence.
package state

import (
	"sort"
	"sync"

	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/tstamp"
)

// ChatStore holds the conversation summaries visible to the current user,
// keyed by conversation key. Pushes from the backend replace the full set.
type ChatStore struct {
	mu    sync.RWMutex
	chats map[string]chatdb.ChatSummary
	// order preserves push order so conversations without a timestamp
	// keep a stable relative order when sorted.
	order []string
}

// NewChatStore returns an empty ChatStore.
func NewChatStore() *ChatStore {
	return &ChatStore{chats: map[string]chatdb.ChatSummary{}}
}

// ReplaceAll replaces the full summary set with the pushed list.
// Replaying the same push is a no-op in effect.
func (s *ChatStore) ReplaceAll(chats []chatdb.ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = make(map[string]chatdb.ChatSummary, len(chats))
	s.order = s.order[:0]
	for _, c := range chats {
		if c.ID == "" {
			continue
		}
		if _, ok := s.chats[c.ID]; !ok {
			s.order = append(s.order, c.ID)
		}
		s.chats[c.ID] = c
	}
}

// ApplyLastMessage updates one summary's denormalized last-message fields.
// No-op when the conversation is not in the store.
func (s *ChatStore) ApplyLastMessage(chatID, text string, timestamp *tstamp.Timestamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return
	}
	c.LastMessage = text
	c.LastMessageTimestamp = timestamp
	s.chats[chatID] = c
}

// Remove deletes a summary after its conversation was deleted.
func (s *ChatStore) Remove(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatID]; !ok {
		return
	}
	delete(s.chats, chatID)
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns the summary for a conversation key.
func (s *ChatStore) Get(chatID string) (chatdb.ChatSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	return c, ok
}

// Len returns the number of conversations.
func (s *ChatStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

// Clear empties the store, used on sign-out.
func (s *ChatStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = map[string]chatdb.ChatSummary{}
	s.order = nil
}

// SortedByRecency returns the summaries ordered by last-message time
// descending. Conversations without a message sort as time zero, last
// among timestamped ones and stable among themselves.
func (s *ChatStore) SortedByRecency() []chatdb.ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chatdb.ChatSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chats[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return summarySeconds(out[i]) > summarySeconds(out[j])
	})
	return out
}

func summarySeconds(c chatdb.ChatSummary) int64 {
	if c.LastMessageTimestamp == nil {
		return 0
	}
	return c.LastMessageTimestamp.Seconds
}
