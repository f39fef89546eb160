// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"sync"

	"github.com/Shahzain333/Chat-Application/internal/chatdb"
)

// Store is the single state container for the client. All mutation goes
// through the stores' operations; there are no module-level singletons.
type Store struct {
	// Chats is the conversation summary list.
	Chats *ChatStore

	// Messages is the active conversation's message sequence.
	Messages *MessageStore

	mu           sync.RWMutex
	currentUser  *chatdb.User
	selectedUser *chatdb.User
}

// NewStore returns an empty state container.
func NewStore() *Store {
	return &Store{
		Chats:    NewChatStore(),
		Messages: NewMessageStore(),
	}
}

// CurrentUser returns the cached record of the signed-in user.
func (s *Store) CurrentUser() *chatdb.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentUser
}

// SetCurrentUser caches the signed-in user's record.
func (s *Store) SetCurrentUser(u *chatdb.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentUser = u
}

// SelectedUser returns the active conversation partner, or nil.
func (s *Store) SelectedUser() *chatdb.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedUser
}

// SetSelectedUser caches the active conversation partner.
func (s *Store) SetSelectedUser(u *chatdb.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedUser = u
}

// Clear resets everything, used on sign-out.
func (s *Store) Clear() {
	s.mu.Lock()
	s.currentUser = nil
	s.selectedUser = nil
	s.mu.Unlock()
	s.Chats.Clear()
	s.Messages.Reset("")
}
