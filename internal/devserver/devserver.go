// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package devserver serves the wsbridge frame protocol over websockets on
// top of the in-memory backend. It exists for local development and
// integration tests, where running against Firestore is not practical.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Shahzain333/Chat-Application/internal/backend"
	"github.com/Shahzain333/Chat-Application/internal/backend/memory"
	"github.com/Shahzain333/Chat-Application/internal/backend/wsbridge"
	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/state"
	"github.com/Shahzain333/Chat-Application/internal/subscribe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Local development only; never exposed publicly.
		return true
	},
}

// Handler serves the chat frame protocol for one Hub.
type Handler struct {
	hub *memory.Hub
}

// New returns a Handler backed by the given hub.
func New(hub *memory.Hub) *Handler {
	return &Handler{hub: hub}
}

// Router returns the HTTP routes: the websocket endpoint and a health
// check.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", h.handleWS)
	return r
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, "missing uid", http.StatusBadRequest)
		return
	}
	if _, ok := h.hub.User(uid); !ok {
		http.Error(w, "unknown uid", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{
		sess:    h.hub.Session(uid),
		ws:      wsConn,
		send:    make(chan []byte, 64),
		streams: map[string]subscribe.Unsubscribe{},
	}
	go c.writeLoop()
	c.readLoop()
	c.teardown()
}

// conn is one client connection. Stream detach handles are tracked per
// stream id so an unsubscribe or connection drop tears them down.
type conn struct {
	sess *memory.Session
	ws   *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	streams map[string]subscribe.Unsubscribe
	closed  bool
}

func (c *conn) readLoop() {
	defer func() { _ = c.ws.Close() }()
	c.ws.SetReadLimit(64 * 1024)
	for {
		var frame wsbridge.ClientFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}
		c.dispatch(frame)
	}
}

func (c *conn) writeLoop() {
	defer func() { _ = c.ws.Close() }()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *conn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	streams := c.streams
	c.streams = map[string]subscribe.Unsubscribe{}
	c.mu.Unlock()

	for _, detach := range streams {
		detach()
	}
	close(c.send)
}

func (c *conn) dispatch(frame wsbridge.ClientFrame) {
	ctx := context.Background()
	switch frame.Op {
	case wsbridge.OpSubscribe:
		c.handleSubscribe(frame)
	case wsbridge.OpUnsubscribe:
		c.mu.Lock()
		detach, ok := c.streams[frame.ID]
		delete(c.streams, frame.ID)
		c.mu.Unlock()
		if ok {
			detach()
		}
		c.result(frame.ID, nil)
	case wsbridge.OpSend:
		c.reply(frame.ID, c.sess.SendMessage(ctx, frame.Text, frame.Key, frame.SenderUID, frame.RecipientUID))
	case wsbridge.OpEdit:
		c.reply(frame.ID, c.sess.UpdateMessage(ctx, frame.Key, frame.MessageID, frame.Text))
	case wsbridge.OpDelete:
		c.reply(frame.ID, c.sess.DeleteMessage(ctx, frame.Key, frame.MessageID))
	case wsbridge.OpDeleteChat:
		c.reply(frame.ID, c.sess.DeleteConversation(ctx, frame.Key))
	case wsbridge.OpSearch:
		users, err := c.sess.SearchUsers(ctx, frame.Term)
		if err != nil {
			c.fail(frame.ID, err)
			return
		}
		c.result(frame.ID, users)
	case wsbridge.OpSignOut:
		c.reply(frame.ID, c.sess.SignOut(ctx))
	default:
		c.write(wsbridge.ServerFrame{
			Kind:    wsbridge.KindError,
			ID:      frame.ID,
			Code:    wsbridge.CodeInternal,
			Message: "unknown op " + frame.Op,
		})
	}
}

func (c *conn) handleSubscribe(frame wsbridge.ClientFrame) {
	id := frame.ID
	onErr := func(err error) {
		c.write(wsbridge.ServerFrame{Kind: wsbridge.KindDetached, ID: id, Message: err.Error()})
	}

	var detach subscribe.Unsubscribe
	var err error
	switch frame.Scope {
	case wsbridge.ScopeAuth:
		detach, err = c.sess.OnAuthStateChange(func(u *chatdb.User) {
			// A null payload means signed out.
			c.push(id, u)
		}, onErr)
	case wsbridge.ScopeProfile:
		detach, err = c.sess.SubscribeUserProfile(frame.UID, func(u chatdb.User) {
			c.push(id, u)
		}, onErr)
	case wsbridge.ScopeChats:
		detach, err = c.sess.SubscribeChatList(func(chats []chatdb.ChatSummary) {
			c.push(id, chats)
		}, onErr)
	case wsbridge.ScopeMessages:
		detach, err = c.sess.SubscribeMessages(frame.Key, func(msgs []chatdb.Message) {
			c.push(id, msgs)
		}, onErr)
	default:
		c.write(wsbridge.ServerFrame{
			Kind:    wsbridge.KindError,
			ID:      id,
			Code:    wsbridge.CodeInternal,
			Message: "unknown scope " + frame.Scope,
		})
		return
	}
	if err != nil {
		c.fail(id, err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		detach()
		return
	}
	c.streams[id] = detach
	c.mu.Unlock()
	c.result(id, nil)
}

func (c *conn) reply(id string, err error) {
	if err != nil {
		c.fail(id, err)
		return
	}
	c.result(id, nil)
}

func (c *conn) result(id string, payload any) {
	frame := wsbridge.ServerFrame{Kind: wsbridge.KindResult, ID: id}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.fail(id, err)
			return
		}
		frame.Payload = data
	}
	c.write(frame)
}

func (c *conn) push(id string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("devserver: encoding push", "stream", id, "error", err)
		return
	}
	c.write(wsbridge.ServerFrame{Kind: wsbridge.KindPush, ID: id, Payload: data})
}

// fail maps backend errors onto wire error codes.
func (c *conn) fail(id string, err error) {
	code := wsbridge.CodeInternal
	var sendErr *backend.SendError
	switch {
	case errors.Is(err, backend.ErrIdentityUnresolved):
		code = wsbridge.CodeIdentityUnresolved
	case errors.Is(err, state.ErrEditNotAllowed):
		code = wsbridge.CodeEditNotAllowed
	case errors.Is(err, state.ErrDeleteNotAllowed):
		code = wsbridge.CodeDeleteNotAllowed
	case errors.As(err, &sendErr):
		code = wsbridge.CodeSend
	}
	c.write(wsbridge.ServerFrame{Kind: wsbridge.KindError, ID: id, Code: code, Message: err.Error()})
}

func (c *conn) write(frame wsbridge.ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("devserver: encoding frame", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer; drop the connection rather than block the hub.
		_ = c.ws.Close()
	}
}
