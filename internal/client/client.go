// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package client orchestrates the chat core: it owns the state container,
// drives the subscription manager from auth and selection changes, applies
// optimistic mutations, and reconciles summaries. All backend calls go
// through the backend.Service interface.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Shahzain333/Chat-Application/internal/autherr"
	"github.com/Shahzain333/Chat-Application/internal/backend"
	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/chatkey"
	"github.com/Shahzain333/Chat-Application/internal/state"
	"github.com/Shahzain333/Chat-Application/internal/subscribe"
)

// Client is the chat client core.
type Client struct {
	svc   backend.Service
	store *state.Store
	mgr   *subscribe.Manager
	rec   *state.Reconciler

	onSubErr func(error)

	mu         sync.Mutex
	activeKey  string
	detachAuth subscribe.Unsubscribe
}

// Option configures a Client.
type Option func(*Client)

// WithSubscriptionErrorHandler registers an observer for dead
// subscriptions. The manager does not retry; the observer may call the
// select or start methods again to resubscribe.
func WithSubscriptionErrorHandler(fn func(error)) Option {
	return func(c *Client) { c.onSubErr = fn }
}

// New returns a Client for the given backend.
func New(svc backend.Service, opts ...Option) *Client {
	store := state.NewStore()
	c := &Client{
		svc:   svc,
		store: store,
		mgr:   subscribe.NewManager(),
		rec:   state.NewReconciler(store.Chats, store.Messages),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start attaches the auth listener. Profile and chat list subscriptions
// follow automatically once the listener reports a signed-in user.
func (c *Client) Start() error {
	detach, err := c.svc.OnAuthStateChange(c.onAuthState, c.subErr("auth"))
	if err != nil {
		return fmt.Errorf("client: attaching auth listener: %w", err)
	}
	c.mu.Lock()
	c.detachAuth = detach
	c.mu.Unlock()
	return nil
}

// Close detaches everything. The local state is left as-is.
func (c *Client) Close() {
	c.mu.Lock()
	detach := c.detachAuth
	c.detachAuth = nil
	c.mu.Unlock()
	if detach != nil {
		detach()
	}
	c.mgr.DetachAll()
}

func (c *Client) onAuthState(u *chatdb.User) {
	if u == nil {
		c.setActiveKey("")
		c.mgr.DetachAll()
		c.store.Clear()
		return
	}
	c.store.SetCurrentUser(u)
	if _, err := subscribe.Attach(c.mgr, subscribe.ScopeProfile, backend.UserProfile(c.svc, u.UID), c.onProfile, c.subErr(subscribe.ScopeProfile)); err != nil {
		slog.Error("client: subscribing profile", "uid", u.UID, "error", err)
	}
	if _, err := subscribe.Attach(c.mgr, subscribe.ScopeChatList, backend.ChatList(c.svc), c.onChatList, c.subErr(subscribe.ScopeChatList)); err != nil {
		slog.Error("client: subscribing chat list", "error", err)
	}
}

func (c *Client) onProfile(u chatdb.User) {
	c.store.SetCurrentUser(&u)
}

func (c *Client) onChatList(chats []chatdb.ChatSummary) {
	c.store.Chats.ReplaceAll(chats)
}

// SelectUser switches the active conversation to the given partner, or to
// none when nil. The previous message subscription is detached before the
// store rebinds, so a late push for the old conversation cannot land.
func (c *Client) SelectUser(user *chatdb.User) error {
	c.mgr.Detach(subscribe.ScopeMessages)
	c.mgr.Detach(subscribe.ScopePeer)
	c.store.SetSelectedUser(user)

	if user == nil {
		c.store.Messages.Reset("")
		c.setActiveKey("")
		return nil
	}

	cur := c.store.CurrentUser()
	curUID := ""
	if cur != nil {
		curUID = cur.UID
	}
	key, ok := chatkey.Resolve(curUID, user.UID)
	if !ok {
		// Leave the message store empty rather than failing the UI.
		c.store.Messages.Reset("")
		c.setActiveKey("")
		return backend.ErrIdentityUnresolved
	}

	c.store.Messages.Reset(key)
	c.setActiveKey(key)

	onPush := func(msgs []chatdb.Message) {
		if c.store.Messages.ReplaceAll(key, msgs) {
			c.rec.Resync(key)
		}
	}
	if _, err := subscribe.Attach(c.mgr, subscribe.ScopeMessages, backend.Messages(c.svc, key), onPush, c.subErr(subscribe.ScopeMessages)); err != nil {
		return fmt.Errorf("client: subscribing messages for %s: %w", key, err)
	}

	onPeer := func(u chatdb.User) { c.store.SetSelectedUser(&u) }
	if _, err := subscribe.Attach(c.mgr, subscribe.ScopePeer, backend.UserProfile(c.svc, user.UID), onPeer, c.subErr(subscribe.ScopePeer)); err != nil {
		slog.Error("client: subscribing peer profile", "uid", user.UID, "error", err)
	}
	return nil
}

// SendMessage sends text to the selected partner. The message appears
// locally at once as provisional; a send failure rolls it back and leaves
// the summary untouched, since summaries only ever reflect confirmed
// messages.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	cur := c.store.CurrentUser()
	sel := c.store.SelectedUser()
	key := c.ActiveConversation()
	if cur == nil || sel == nil || key == "" {
		return backend.ErrIdentityUnresolved
	}

	tempID := c.store.Messages.AppendOptimistic(text, cur.Email)
	if err := c.svc.SendMessage(ctx, text, key, cur.UID, sel.UID); err != nil {
		c.store.Messages.RemoveOptimistic(tempID)
		slog.ErrorContext(ctx, "client: sending message", "conversation", key, "error", err)
		return fmt.Errorf("client: sending message: %w", err)
	}
	return nil
}

// EditMessage edits a confirmed message locally, propagates the edit to
// the summary when the target is the latest message, then confirms with
// the backend. A backend failure restores the previous state.
func (c *Client) EditMessage(ctx context.Context, messageID, newText string) error {
	key := c.ActiveConversation()
	if key == "" {
		return backend.ErrIdentityUnresolved
	}
	prev, _ := c.store.Messages.Get(messageID)
	if err := c.store.Messages.ApplyEdit(messageID, newText); err != nil {
		return err
	}
	c.rec.AfterEdit(key, messageID)

	if err := c.svc.UpdateMessage(ctx, key, messageID, newText); err != nil {
		c.store.Messages.Restore(prev)
		c.rec.Resync(key)
		slog.ErrorContext(ctx, "client: updating message", "conversation", key, "message", messageID, "error", err)
		return fmt.Errorf("client: updating message: %w", err)
	}
	return nil
}

// DeleteMessage removes a confirmed message locally, falls the summary
// back to the remaining latest message, then confirms with the backend.
// A backend failure restores the previous state.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	key := c.ActiveConversation()
	if key == "" {
		return backend.ErrIdentityUnresolved
	}
	prev, _ := c.store.Messages.Get(messageID)
	if err := c.store.Messages.ApplyDelete(messageID); err != nil {
		return err
	}
	c.rec.Resync(key)

	if err := c.svc.DeleteMessage(ctx, key, messageID); err != nil {
		c.store.Messages.Restore(prev)
		c.rec.Resync(key)
		slog.ErrorContext(ctx, "client: deleting message", "conversation", key, "message", messageID, "error", err)
		return fmt.Errorf("client: deleting message: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation with the given partner and
// clears the selection when that partner was active.
func (c *Client) DeleteConversation(ctx context.Context, peerUID string) error {
	cur := c.store.CurrentUser()
	curUID := ""
	if cur != nil {
		curUID = cur.UID
	}
	key, ok := chatkey.Resolve(curUID, peerUID)
	if !ok {
		return backend.ErrIdentityUnresolved
	}
	if err := c.svc.DeleteConversation(ctx, key); err != nil {
		slog.ErrorContext(ctx, "client: deleting conversation", "conversation", key, "error", err)
		return fmt.Errorf("client: deleting conversation: %w", err)
	}
	c.store.Chats.Remove(key)
	if sel := c.store.SelectedUser(); sel != nil && sel.UID == peerUID {
		return c.SelectUser(nil)
	}
	return nil
}

// SearchUsers finds chat partners by username prefix.
func (c *Client) SearchUsers(ctx context.Context, term string) ([]chatdb.User, error) {
	users, err := c.svc.SearchUsers(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("client: searching users: %w", err)
	}
	return users, nil
}

// SignOut ends the session; the auth listener clears all local state.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.svc.SignOut(ctx); err != nil {
		return autherr.Classify(err)
	}
	return nil
}

// Chats returns the conversation list ordered by recency.
func (c *Client) Chats() []chatdb.ChatSummary {
	return c.store.Chats.SortedByRecency()
}

// Messages returns the active conversation's messages in display order.
func (c *Client) Messages() []chatdb.Message {
	return c.store.Messages.SortedByTime()
}

// CurrentUser returns the signed-in user's cached record.
func (c *Client) CurrentUser() *chatdb.User { return c.store.CurrentUser() }

// SelectedUser returns the active conversation partner.
func (c *Client) SelectedUser() *chatdb.User { return c.store.SelectedUser() }

// ActiveConversation returns the active conversation key, or empty.
func (c *Client) ActiveConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeKey
}

func (c *Client) setActiveKey(key string) {
	c.mu.Lock()
	c.activeKey = key
	c.mu.Unlock()
}

func (c *Client) subErr(scope string) func(error) {
	return func(err error) {
		slog.Error("client: subscription failed", "scope", scope, "error", err)
		if c.onSubErr != nil {
			c.onSubErr(err)
		}
	}
}
