// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package wsbridge implements the backend service over a websocket
// connection to a chat server speaking the frame protocol in wire.go.
// Requests are correlated by id; subscription pushes reuse the subscribe
// request's id as their stream id. Every inbound payload goes through the
// chatdb map decoders, so timestamps are normalized at the boundary like
// in the other backends.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Shahzain333/Chat-Application/internal/backend"
	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/state"
	"github.com/Shahzain333/Chat-Application/internal/subscribe"
)

// ErrClosed is returned for operations on a closed bridge.
var ErrClosed = errors.New("wsbridge: connection closed")

// Bridge is a backend.Service over one websocket connection.
type Bridge struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	uid      string
	lastUser chatdb.User
	pending  map[string]chan ServerFrame
	subs     map[string]*stream
	authSubs map[int]func(*chatdb.User)
	nextAuth int
	closed   bool

	done chan struct{}
}

type stream struct {
	onPush func(json.RawMessage)
	onErr  func(error)
}

var _ backend.Service = (*Bridge)(nil)

// Dial connects to the chat server, retrying transient dial failures with
// exponential backoff, and blocks until the server reports the initial
// auth state.
func Dial(ctx context.Context, url string) (*Bridge, error) {
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("wsbridge: dialing %s: %w", url, err)
		}
		return conn, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		conn:     conn,
		pending:  map[string]chan ServerFrame{},
		subs:     map[string]*stream{},
		authSubs: map[int]func(*chatdb.User){},
		done:     make(chan struct{}),
	}
	go b.readLoop()

	authReady := make(chan struct{})
	var once sync.Once
	_, err = b.attach(ctx, ClientFrame{Op: OpSubscribe, Scope: ScopeAuth}, func(payload json.RawMessage) {
		b.onAuthPush(payload)
		once.Do(func() { close(authReady) })
	}, func(err error) {
		slog.Error("wsbridge: auth stream failed", "error", err)
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("wsbridge: subscribing auth state: %w", err)
	}

	select {
	case <-authReady:
	case <-b.done:
		return nil, ErrClosed
	case <-ctx.Done():
		b.Close()
		return nil, ctx.Err()
	}
	return b, nil
}

// Close tears down the connection. All pending calls fail and every
// subscription's error handler fires.
func (b *Bridge) Close() {
	_ = b.conn.Close()
}

// CurrentUserID implements backend.Service.
func (b *Bridge) CurrentUserID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uid
}

// SignOut implements backend.Service. The server answers the auth stream
// with a null user, which clears the session identity.
func (b *Bridge) SignOut(ctx context.Context) error {
	_, err := b.call(ctx, ClientFrame{Op: OpSignOut})
	return err
}

// OnAuthStateChange implements backend.Service. The current state is
// delivered immediately on attach.
func (b *Bridge) OnAuthStateChange(onChange func(*chatdb.User), _ func(error)) (subscribe.Unsubscribe, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	id := b.nextAuth
	b.nextAuth++
	b.authSubs[id] = onChange
	uid := b.uid
	b.mu.Unlock()

	if uid == "" {
		onChange(nil)
	} else {
		onChange(b.currentUser())
	}
	return func() {
		b.mu.Lock()
		delete(b.authSubs, id)
		b.mu.Unlock()
	}, nil
}

// SubscribeUserProfile implements backend.Service.
func (b *Bridge) SubscribeUserProfile(uid string, onPush func(chatdb.User), onErr func(error)) (subscribe.Unsubscribe, error) {
	return b.attach(context.Background(), ClientFrame{Op: OpSubscribe, Scope: ScopeProfile, UID: uid}, func(payload json.RawMessage) {
		var raw map[string]any
		if err := json.Unmarshal(payload, &raw); err != nil {
			slog.Error("wsbridge: decoding profile push", "uid", uid, "error", err)
			return
		}
		onPush(chatdb.UserFromMap(raw))
	}, onErr)
}

// SubscribeChatList implements backend.Service.
func (b *Bridge) SubscribeChatList(onPush func([]chatdb.ChatSummary), onErr func(error)) (subscribe.Unsubscribe, error) {
	return b.attach(context.Background(), ClientFrame{Op: OpSubscribe, Scope: ScopeChats}, func(payload json.RawMessage) {
		var raws []map[string]any
		if err := json.Unmarshal(payload, &raws); err != nil {
			slog.Error("wsbridge: decoding chat list push", "error", err)
			return
		}
		chats := make([]chatdb.ChatSummary, 0, len(raws))
		for _, raw := range raws {
			chats = append(chats, chatdb.ChatSummaryFromMap(raw))
		}
		onPush(chats)
	}, onErr)
}

// SubscribeMessages implements backend.Service.
func (b *Bridge) SubscribeMessages(conversationKey string, onPush func([]chatdb.Message), onErr func(error)) (subscribe.Unsubscribe, error) {
	if conversationKey == "" {
		return nil, backend.ErrIdentityUnresolved
	}
	return b.attach(context.Background(), ClientFrame{Op: OpSubscribe, Scope: ScopeMessages, Key: conversationKey}, func(payload json.RawMessage) {
		var raws []map[string]any
		if err := json.Unmarshal(payload, &raws); err != nil {
			slog.Error("wsbridge: decoding messages push", "conversation", conversationKey, "error", err)
			return
		}
		msgs := make([]chatdb.Message, 0, len(raws))
		for _, raw := range raws {
			msgs = append(msgs, chatdb.MessageFromMap(raw))
		}
		onPush(msgs)
	}, onErr)
}

// SendMessage implements backend.Service.
func (b *Bridge) SendMessage(ctx context.Context, text, conversationKey, senderUID, recipientUID string) error {
	if conversationKey == "" || senderUID == "" || recipientUID == "" {
		return backend.ErrIdentityUnresolved
	}
	_, err := b.call(ctx, ClientFrame{
		Op:           OpSend,
		Key:          conversationKey,
		Text:         text,
		SenderUID:    senderUID,
		RecipientUID: recipientUID,
	})
	return err
}

// UpdateMessage implements backend.Service.
func (b *Bridge) UpdateMessage(ctx context.Context, conversationKey, messageID, newText string) error {
	_, err := b.call(ctx, ClientFrame{Op: OpEdit, Key: conversationKey, MessageID: messageID, Text: newText})
	return err
}

// DeleteMessage implements backend.Service.
func (b *Bridge) DeleteMessage(ctx context.Context, conversationKey, messageID string) error {
	_, err := b.call(ctx, ClientFrame{Op: OpDelete, Key: conversationKey, MessageID: messageID})
	return err
}

// DeleteConversation implements backend.Service.
func (b *Bridge) DeleteConversation(ctx context.Context, conversationKey string) error {
	_, err := b.call(ctx, ClientFrame{Op: OpDeleteChat, Key: conversationKey})
	return err
}

// SearchUsers implements backend.Service.
func (b *Bridge) SearchUsers(ctx context.Context, term string) ([]chatdb.User, error) {
	res, err := b.call(ctx, ClientFrame{Op: OpSearch, Term: term})
	if err != nil {
		return nil, err
	}
	var raws []map[string]any
	if err := json.Unmarshal(res.Payload, &raws); err != nil {
		return nil, fmt.Errorf("wsbridge: decoding search result: %w", err)
	}
	users := make([]chatdb.User, 0, len(raws))
	for _, raw := range raws {
		users = append(users, chatdb.UserFromMap(raw))
	}
	return users, nil
}

func (b *Bridge) currentUser() *chatdb.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uid == "" {
		return nil
	}
	u := b.lastUser
	return &u
}

// onAuthPush tracks the session identity and fans the transition out to
// every registered auth listener.
func (b *Bridge) onAuthPush(payload json.RawMessage) {
	var raw map[string]any
	var user *chatdb.User
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &raw); err != nil {
			slog.Error("wsbridge: decoding auth push", "error", err)
			return
		}
		u := chatdb.UserFromMap(raw)
		user = &u
	}

	b.mu.Lock()
	if user != nil {
		b.uid = user.UID
		b.lastUser = *user
	} else {
		b.uid = ""
		b.lastUser = chatdb.User{}
	}
	listeners := make([]func(*chatdb.User), 0, len(b.authSubs))
	for _, fn := range b.authSubs {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(user)
	}
}

// attach subscribes a stream and returns an idempotent detach handle that
// notifies the server on a best-effort basis.
func (b *Bridge) attach(ctx context.Context, req ClientFrame, onPush func(json.RawMessage), onErr func(error)) (subscribe.Unsubscribe, error) {
	id := uuid.NewString()
	req.ID = id

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[id] = &stream{onPush: onPush, onErr: onErr}
	b.mu.Unlock()

	if _, err := b.callWithID(ctx, req); err != nil {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				if err := b.write(ClientFrame{Op: OpUnsubscribe, ID: id}); err != nil {
					slog.Error("wsbridge: unsubscribing", "stream", id, "error", err)
				}
			}
		})
	}, nil
}

func (b *Bridge) call(ctx context.Context, req ClientFrame) (ServerFrame, error) {
	req.ID = uuid.NewString()
	return b.callWithID(ctx, req)
}

func (b *Bridge) callWithID(ctx context.Context, req ClientFrame) (ServerFrame, error) {
	ch := make(chan ServerFrame, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ServerFrame{}, ErrClosed
	}
	b.pending[req.ID] = ch
	b.mu.Unlock()

	if err := b.write(req); err != nil {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
		return ServerFrame{}, fmt.Errorf("wsbridge: writing %s request: %w", req.Op, err)
	}

	select {
	case res := <-ch:
		if res.Kind == KindError {
			return ServerFrame{}, frameError(req.Op, res)
		}
		return res, nil
	case <-b.done:
		return ServerFrame{}, ErrClosed
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
		return ServerFrame{}, ctx.Err()
	}
}

func (b *Bridge) write(frame ClientFrame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(frame)
}

func (b *Bridge) readLoop() {
	for {
		var frame ServerFrame
		if err := b.conn.ReadJSON(&frame); err != nil {
			b.teardown(err)
			return
		}
		b.dispatch(frame)
	}
}

func (b *Bridge) dispatch(frame ServerFrame) {
	switch frame.Kind {
	case KindResult, KindError:
		b.mu.Lock()
		ch, ok := b.pending[frame.ID]
		delete(b.pending, frame.ID)
		b.mu.Unlock()
		if ok {
			ch <- frame
		}
	case KindPush:
		b.mu.Lock()
		s, ok := b.subs[frame.ID]
		b.mu.Unlock()
		if ok {
			s.onPush(frame.Payload)
		}
	case KindDetached:
		b.mu.Lock()
		s, ok := b.subs[frame.ID]
		delete(b.subs, frame.ID)
		b.mu.Unlock()
		if ok && s.onErr != nil {
			s.onErr(&backend.SubscriptionError{Scope: frame.ID, Err: errors.New(frame.Message)})
		}
	default:
		slog.Warn("wsbridge: unknown frame kind", "kind", frame.Kind)
	}
}

// teardown fails all pending calls and notifies every stream after the
// connection drops.
func (b *Bridge) teardown(cause error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[string]*stream{}
	b.pending = map[string]chan ServerFrame{}
	b.mu.Unlock()

	close(b.done)
	_ = b.conn.Close()
	for id, s := range subs {
		if s.onErr != nil {
			s.onErr(&backend.SubscriptionError{Scope: id, Err: cause})
		}
	}
}

// frameError maps a server error frame back to the operation-boundary
// error taxonomy.
func frameError(op string, frame ServerFrame) error {
	switch frame.Code {
	case CodeIdentityUnresolved:
		return backend.ErrIdentityUnresolved
	case CodeEditNotAllowed:
		return fmt.Errorf("wsbridge: %s: %w", frame.Message, state.ErrEditNotAllowed)
	case CodeDeleteNotAllowed:
		return fmt.Errorf("wsbridge: %s: %w", frame.Message, state.ErrDeleteNotAllowed)
	case CodeSend:
		return &backend.SendError{Err: errors.New(frame.Message)}
	default:
		return fmt.Errorf("wsbridge: %s failed: %s", op, frame.Message)
	}
}
