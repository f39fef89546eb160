// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package memory is an in-process implementation of the backend service.
// It backs the local dev server and the client tests, so its summary
// maintenance mirrors the production Firestore implementation: every
// mutation recomputes the denormalized last-message fields and pushes the
// full state of each affected scope to its listeners.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Shahzain333/Chat-Application/internal/backend"
	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/state"
	"github.com/Shahzain333/Chat-Application/internal/subscribe"
	"github.com/Shahzain333/Chat-Application/internal/tstamp"
)

// Hub holds the shared chat state. Sessions bound to individual users are
// created with Session; pushes are delivered synchronously on the mutating
// call.
type Hub struct {
	mu    sync.Mutex
	users map[string]chatdb.User
	chats map[string]*conversation

	nextSub     int
	profileSubs map[int]profileSub
	chatSubs    map[int]chatListSub
	msgSubs     map[int]messagesSub
}

type conversation struct {
	summary  chatdb.ChatSummary
	uids     []string
	messages map[string]chatdb.Message
	order    []string
}

type profileSub struct {
	uid string
	fn  func(chatdb.User)
}

type chatListSub struct {
	uid string
	fn  func([]chatdb.ChatSummary)
}

type messagesSub struct {
	key string
	fn  func([]chatdb.Message)
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		users:       map[string]chatdb.User{},
		chats:       map[string]*conversation{},
		profileSubs: map[int]profileSub{},
		chatSubs:    map[int]chatListSub{},
		msgSubs:     map[int]messagesSub{},
	}
}

// AddUser registers or updates a user record and notifies profile
// listeners.
func (h *Hub) AddUser(u chatdb.User) {
	h.mu.Lock()
	if u.CreatedAt == nil {
		now := tstamp.Now()
		u.CreatedAt = &now
	}
	h.users[u.UID] = u
	notify := h.profileNotifications(u.UID)
	h.mu.Unlock()
	runAll(notify)
}

// User returns a registered user record.
func (h *Hub) User(uid string) (chatdb.User, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.users[uid]
	return u, ok
}

// Session returns a backend.Service bound to the given user.
func (h *Hub) Session(uid string) *Session {
	return &Session{hub: h, uid: uid, authSubs: map[int]func(*chatdb.User){}}
}

// Session is one user's view of the Hub.
type Session struct {
	hub *Hub

	mu       sync.Mutex
	uid      string
	nextAuth int
	authSubs map[int]func(*chatdb.User)
}

var _ backend.Service = (*Session)(nil)

// CurrentUserID implements backend.Service.
func (s *Session) CurrentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid
}

// SignOut clears the session identity and fires the auth listeners with
// no user.
func (s *Session) SignOut(_ context.Context) error {
	s.mu.Lock()
	s.uid = ""
	listeners := make([]func(*chatdb.User), 0, len(s.authSubs))
	for _, fn := range s.authSubs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(nil)
	}
	return nil
}

// OnAuthStateChange implements backend.Service. The current state is
// delivered immediately on attach.
func (s *Session) OnAuthStateChange(onChange func(*chatdb.User), _ func(error)) (subscribe.Unsubscribe, error) {
	s.mu.Lock()
	id := s.nextAuth
	s.nextAuth++
	s.authSubs[id] = onChange
	uid := s.uid
	s.mu.Unlock()

	if uid == "" {
		onChange(nil)
	} else if u, ok := s.hub.User(uid); ok {
		onChange(&u)
	} else {
		onChange(nil)
	}
	return func() {
		s.mu.Lock()
		delete(s.authSubs, id)
		s.mu.Unlock()
	}, nil
}

// SubscribeUserProfile implements backend.Service.
func (s *Session) SubscribeUserProfile(uid string, onPush func(chatdb.User), _ func(error)) (subscribe.Unsubscribe, error) {
	h := s.hub
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.profileSubs[id] = profileSub{uid: uid, fn: onPush}
	u, ok := h.users[uid]
	h.mu.Unlock()

	if ok {
		onPush(u)
	}
	return func() {
		h.mu.Lock()
		delete(h.profileSubs, id)
		h.mu.Unlock()
	}, nil
}

// SubscribeChatList implements backend.Service.
func (s *Session) SubscribeChatList(onPush func([]chatdb.ChatSummary), _ func(error)) (subscribe.Unsubscribe, error) {
	uid := s.CurrentUserID()
	h := s.hub
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.chatSubs[id] = chatListSub{uid: uid, fn: onPush}
	initial := h.chatListFor(uid)
	h.mu.Unlock()

	onPush(initial)
	return func() {
		h.mu.Lock()
		delete(h.chatSubs, id)
		h.mu.Unlock()
	}, nil
}

// SubscribeMessages implements backend.Service.
func (s *Session) SubscribeMessages(conversationKey string, onPush func([]chatdb.Message), _ func(error)) (subscribe.Unsubscribe, error) {
	if conversationKey == "" {
		return nil, backend.ErrIdentityUnresolved
	}
	h := s.hub
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.msgSubs[id] = messagesSub{key: conversationKey, fn: onPush}
	initial := h.messagesFor(conversationKey)
	h.mu.Unlock()

	onPush(initial)
	return func() {
		h.mu.Lock()
		delete(h.msgSubs, id)
		h.mu.Unlock()
	}, nil
}

// SendMessage implements backend.Service.
func (s *Session) SendMessage(_ context.Context, text, conversationKey, senderUID, recipientUID string) error {
	if conversationKey == "" || senderUID == "" || recipientUID == "" {
		return backend.ErrIdentityUnresolved
	}
	h := s.hub
	h.mu.Lock()
	sender, okSender := h.users[senderUID]
	recipient, okRecipient := h.users[recipientUID]
	if !okSender || !okRecipient {
		h.mu.Unlock()
		return &backend.SendError{Err: fmt.Errorf("memory: unknown participant in %s", conversationKey)}
	}

	conv, ok := h.chats[conversationKey]
	if !ok {
		conv = &conversation{
			summary:  chatdb.ChatSummary{ID: conversationKey, Users: []chatdb.User{sender, recipient}},
			uids:     []string{senderUID, recipientUID},
			messages: map[string]chatdb.Message{},
		}
		h.chats[conversationKey] = conv
	}

	now := tstamp.Now()
	msg := chatdb.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender.Email,
		Timestamp: &now,
	}
	conv.messages[msg.ID] = msg
	conv.order = append(conv.order, msg.ID)
	conv.summary.LastMessage = msg.Text
	conv.summary.LastMessageTimestamp = msg.Timestamp

	notify := h.conversationNotifications(conversationKey, conv)
	h.mu.Unlock()
	runAll(notify)
	return nil
}

// UpdateMessage implements backend.Service. Fails when the message is
// absent or not authored by the session user.
func (s *Session) UpdateMessage(_ context.Context, conversationKey, messageID, newText string) error {
	email := s.userEmail()
	h := s.hub
	h.mu.Lock()
	conv, msg, err := h.findMessage(conversationKey, messageID, email, state.ErrEditNotAllowed)
	if err != nil {
		h.mu.Unlock()
		return err
	}

	now := tstamp.Now()
	msg.Text = newText
	msg.Edited = true
	msg.EditedAt = &now
	conv.messages[messageID] = msg
	if latest, ok := latestMessage(conv); ok && latest.ID == messageID {
		conv.summary.LastMessage = newText
		conv.summary.LastMessageTimestamp = &now
	}

	notify := h.conversationNotifications(conversationKey, conv)
	h.mu.Unlock()
	runAll(notify)
	return nil
}

// DeleteMessage implements backend.Service, recomputing the summary from
// the latest remaining message.
func (s *Session) DeleteMessage(_ context.Context, conversationKey, messageID string) error {
	email := s.userEmail()
	h := s.hub
	h.mu.Lock()
	conv, _, err := h.findMessage(conversationKey, messageID, email, state.ErrDeleteNotAllowed)
	if err != nil {
		h.mu.Unlock()
		return err
	}

	delete(conv.messages, messageID)
	for i, id := range conv.order {
		if id == messageID {
			conv.order = append(conv.order[:i], conv.order[i+1:]...)
			break
		}
	}
	if latest, ok := latestMessage(conv); ok {
		conv.summary.LastMessage = latest.Text
		conv.summary.LastMessageTimestamp = latest.Timestamp
	} else {
		conv.summary.LastMessage = ""
		conv.summary.LastMessageTimestamp = nil
	}

	notify := h.conversationNotifications(conversationKey, conv)
	h.mu.Unlock()
	runAll(notify)
	return nil
}

// DeleteConversation implements backend.Service. Deleting an absent
// conversation is a no-op.
func (s *Session) DeleteConversation(_ context.Context, conversationKey string) error {
	h := s.hub
	h.mu.Lock()
	conv, ok := h.chats[conversationKey]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	delete(h.chats, conversationKey)
	notify := h.conversationNotifications(conversationKey, conv)
	h.mu.Unlock()
	runAll(notify)
	return nil
}

// SearchUsers implements backend.Service with a case-insensitive username
// prefix match, excluding the caller.
func (s *Session) SearchUsers(_ context.Context, term string) ([]chatdb.User, error) {
	uid := s.CurrentUserID()
	prefix := strings.ToLower(strings.TrimSpace(term))
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []chatdb.User
	for _, u := range h.users {
		if u.UID == uid {
			continue
		}
		if prefix == "" || strings.HasPrefix(strings.ToLower(u.Username), prefix) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Session) userEmail() string {
	uid := s.CurrentUserID()
	if u, ok := s.hub.User(uid); ok {
		return u.Email
	}
	return ""
}

// findMessage resolves a message under the authorship rule, returning
// notAllowed when it is absent or authored by someone else.
func (h *Hub) findMessage(conversationKey, messageID, callerEmail string, notAllowed error) (*conversation, chatdb.Message, error) {
	conv, ok := h.chats[conversationKey]
	if !ok {
		return nil, chatdb.Message{}, fmt.Errorf("memory: conversation %s not found: %w", conversationKey, notAllowed)
	}
	msg, ok := conv.messages[messageID]
	if !ok {
		return nil, chatdb.Message{}, fmt.Errorf("memory: message %s not found: %w", messageID, notAllowed)
	}
	if callerEmail == "" || msg.Sender != callerEmail {
		return nil, chatdb.Message{}, fmt.Errorf("memory: message %s not authored by caller: %w", messageID, notAllowed)
	}
	return conv, msg, nil
}

// Snapshot and notification helpers. All run under h.mu and return
// closures invoked after unlock, so push handlers may call back into the
// hub.

func (h *Hub) chatListFor(uid string) []chatdb.ChatSummary {
	var out []chatdb.ChatSummary
	for _, conv := range h.chats {
		for _, id := range conv.uids {
			if id == uid {
				out = append(out, conv.summary)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) messagesFor(key string) []chatdb.Message {
	conv, ok := h.chats[key]
	if !ok {
		return nil
	}
	out := make([]chatdb.Message, 0, len(conv.order))
	for _, id := range conv.order {
		out = append(out, conv.messages[id])
	}
	return out
}

func (h *Hub) conversationNotifications(key string, conv *conversation) []func() {
	var notify []func()
	msgs := h.messagesFor(key)
	for _, sub := range h.msgSubs {
		if sub.key == key {
			fn := sub.fn
			notify = append(notify, func() { fn(msgs) })
		}
	}
	participants := map[string]bool{}
	for _, uid := range conv.uids {
		participants[uid] = true
	}
	for _, sub := range h.chatSubs {
		if participants[sub.uid] {
			fn := sub.fn
			list := h.chatListFor(sub.uid)
			notify = append(notify, func() { fn(list) })
		}
	}
	return notify
}

func (h *Hub) profileNotifications(uid string) []func() {
	u := h.users[uid]
	var notify []func()
	for _, sub := range h.profileSubs {
		if sub.uid == uid {
			fn := sub.fn
			notify = append(notify, func() { fn(u) })
		}
	}
	return notify
}

func latestMessage(conv *conversation) (chatdb.Message, bool) {
	var latest chatdb.Message
	found := false
	for _, id := range conv.order {
		m := conv.messages[id]
		if !found || !before(m, latest) {
			latest = m
			found = true
		}
	}
	return latest, found
}

func before(a, b chatdb.Message) bool {
	at, bt := tstamp.Timestamp{}, tstamp.Timestamp{}
	if a.Timestamp != nil {
		at = *a.Timestamp
	}
	if b.Timestamp != nil {
		bt = *b.Timestamp
	}
	return at.Before(bt)
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
