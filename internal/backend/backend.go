// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package backend defines the narrow interface the chat core consumes
// from the remote data and auth collaborator, along with the error
// taxonomy surfaced at the operation boundary.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/subscribe"
)

// ErrIdentityUnresolved is returned when a conversation key could not be
// derived because a participant id is unknown. Dependent operations treat
// it as "nothing to do", never as a fatal condition.
var ErrIdentityUnresolved = errors.New("backend: conversation identity unresolved")

// SubscriptionError reports a transport-level failure delivering pushes
// for one scope. The subscription is dead; there is no automatic retry.
type SubscriptionError struct {
	// Scope identifies the failed subscription.
	Scope string
	// Err is the underlying transport error.
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("backend: subscription %s failed: %v", e.Scope, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// SendError reports a rejected or failed send. It is user-visible and
// non-fatal; the caller rolls back the optimistic message.
type SendError struct {
	// Err is the underlying backend error.
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("backend: send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Service is the backend collaborator. Subscriptions push the full state
// of their scope on every change and return idempotent detach handles.
type Service interface {
	// CurrentUserID returns the signed-in user's id, or empty when
	// signed out.
	CurrentUserID() string

	// SignOut ends the session. The auth listener fires with no user.
	SignOut(ctx context.Context) error

	// OnAuthStateChange fires on every auth transition, including once
	// with the current state on attach. A nil user means signed out.
	OnAuthStateChange(onChange func(*chatdb.User), onErr func(error)) (subscribe.Unsubscribe, error)

	// SubscribeUserProfile pushes a user's profile on every change.
	SubscribeUserProfile(uid string, onPush func(chatdb.User), onErr func(error)) (subscribe.Unsubscribe, error)

	// SubscribeChatList pushes the current user's full conversation list
	// on every change.
	SubscribeChatList(onPush func([]chatdb.ChatSummary), onErr func(error)) (subscribe.Unsubscribe, error)

	// SubscribeMessages pushes the full message array of one conversation
	// on every change.
	SubscribeMessages(conversationKey string, onPush func([]chatdb.Message), onErr func(error)) (subscribe.Unsubscribe, error)

	// SendMessage appends a message, creating the conversation if absent,
	// and updates its summary.
	SendMessage(ctx context.Context, text, conversationKey, senderUID, recipientUID string) error

	// UpdateMessage edits a message. Fails when the message is absent or
	// not authored by the caller.
	UpdateMessage(ctx context.Context, conversationKey, messageID, newText string) error

	// DeleteMessage removes a message under the same authorship rule and
	// recomputes the conversation summary.
	DeleteMessage(ctx context.Context, conversationKey, messageID string) error

	// DeleteConversation removes a conversation and all its messages.
	DeleteConversation(ctx context.Context, conversationKey string) error

	// SearchUsers returns users whose username starts with term, always
	// excluding the caller.
	SearchUsers(ctx context.Context, term string) ([]chatdb.User, error)
}

// UserProfile adapts one user's profile subscription to Subscribable.
func UserProfile(s Service, uid string) subscribe.Subscribable[chatdb.User] {
	return subscribe.Func[chatdb.User](func(onPush func(chatdb.User), onErr func(error)) (subscribe.Unsubscribe, error) {
		return s.SubscribeUserProfile(uid, onPush, onErr)
	})
}

// ChatList adapts the chat list subscription to Subscribable.
func ChatList(s Service) subscribe.Subscribable[[]chatdb.ChatSummary] {
	return subscribe.Func[[]chatdb.ChatSummary](func(onPush func([]chatdb.ChatSummary), onErr func(error)) (subscribe.Unsubscribe, error) {
		return s.SubscribeChatList(onPush, onErr)
	})
}

// Messages adapts one conversation's message stream to Subscribable.
func Messages(s Service, conversationKey string) subscribe.Subscribable[[]chatdb.Message] {
	return subscribe.Func[[]chatdb.Message](func(onPush func([]chatdb.Message), onErr func(error)) (subscribe.Unsubscribe, error) {
		return s.SubscribeMessages(conversationKey, onPush, onErr)
	})
}
