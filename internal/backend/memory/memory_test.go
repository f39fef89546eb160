// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Shahzain333/Chat-Application/internal/backend"
	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/state"
)

func newTestHub() *Hub {
	h := NewHub()
	h.AddUser(chatdb.User{UID: "u1", Email: "a@x.com", Username: "alice", FullName: "Alice"})
	h.AddUser(chatdb.User{UID: "u2", Email: "b@x.com", Username: "bob", FullName: "Bob"})
	return h
}

func TestSendCreatesConversationAndPushes(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	sess := h.Session("u1")

	var chatPushes [][]chatdb.ChatSummary
	if _, err := sess.SubscribeChatList(func(chats []chatdb.ChatSummary) {
		chatPushes = append(chatPushes, chats)
	}, nil); err != nil {
		t.Fatal(err)
	}
	if len(chatPushes) != 1 || len(chatPushes[0]) != 0 {
		t.Fatalf("initial push = %v", chatPushes)
	}

	var msgPushes [][]chatdb.Message
	if _, err := sess.SubscribeMessages("u1-u2", func(msgs []chatdb.Message) {
		msgPushes = append(msgPushes, msgs)
	}, nil); err != nil {
		t.Fatal(err)
	}

	if err := sess.SendMessage(ctx, "hello", "u1-u2", "u1", "u2"); err != nil {
		t.Fatal(err)
	}

	last := msgPushes[len(msgPushes)-1]
	if len(last) != 1 || last[0].Text != "hello" || last[0].Sender != "a@x.com" {
		t.Fatalf("messages push = %+v", last)
	}
	if last[0].Timestamp == nil {
		t.Fatal("confirmed message has no timestamp")
	}

	chats := chatPushes[len(chatPushes)-1]
	if len(chats) != 1 || chats[0].LastMessage != "hello" {
		t.Fatalf("chat list push = %+v", chats)
	}
}

func TestUpdateMessageAuthorship(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	alice := h.Session("u1")
	bob := h.Session("u2")

	if err := alice.SendMessage(ctx, "hello", "u1-u2", "u1", "u2"); err != nil {
		t.Fatal(err)
	}
	msgs := h.messagesFor("u1-u2")
	id := msgs[0].ID

	if err := bob.UpdateMessage(ctx, "u1-u2", id, "hacked"); !errors.Is(err, state.ErrEditNotAllowed) {
		t.Fatalf("edit by non-author = %v, want ErrEditNotAllowed", err)
	}
	if err := alice.UpdateMessage(ctx, "u1-u2", "missing", "x"); !errors.Is(err, state.ErrEditNotAllowed) {
		t.Fatalf("edit of missing = %v, want ErrEditNotAllowed", err)
	}

	if err := alice.UpdateMessage(ctx, "u1-u2", id, "hello again"); err != nil {
		t.Fatal(err)
	}
	got := h.messagesFor("u1-u2")[0]
	if got.Text != "hello again" || !got.Edited || got.EditedAt == nil {
		t.Fatalf("edited message = %+v", got)
	}
}

func TestDeleteMessageSummaryFallback(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	alice := h.Session("u1")

	if err := alice.SendMessage(ctx, "first", "u1-u2", "u1", "u2"); err != nil {
		t.Fatal(err)
	}
	if err := alice.SendMessage(ctx, "second", "u1-u2", "u1", "u2"); err != nil {
		t.Fatal(err)
	}

	msgs := h.messagesFor("u1-u2")
	if err := alice.DeleteMessage(ctx, "u1-u2", msgs[1].ID); err != nil {
		t.Fatal(err)
	}
	list := h.chatListFor("u1")
	if list[0].LastMessage != "first" {
		t.Fatalf("summary after deleting latest = %+v", list[0])
	}

	if err := alice.DeleteMessage(ctx, "u1-u2", msgs[0].ID); err != nil {
		t.Fatal(err)
	}
	list = h.chatListFor("u1")
	if list[0].LastMessage != "" || list[0].LastMessageTimestamp != nil {
		t.Fatalf("summary after deleting all = %+v", list[0])
	}

	if err := alice.DeleteMessage(ctx, "u1-u2", msgs[0].ID); !errors.Is(err, state.ErrDeleteNotAllowed) {
		t.Fatalf("second delete = %v, want ErrDeleteNotAllowed", err)
	}
}

func TestDeleteConversation(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	alice := h.Session("u1")

	if err := alice.SendMessage(ctx, "hi", "u1-u2", "u1", "u2"); err != nil {
		t.Fatal(err)
	}
	if err := alice.DeleteConversation(ctx, "u1-u2"); err != nil {
		t.Fatal(err)
	}
	if len(h.chatListFor("u1")) != 0 {
		t.Fatal("conversation still listed")
	}
	if err := alice.DeleteConversation(ctx, "u1-u2"); err != nil {
		t.Fatalf("deleting absent conversation = %v, want nil", err)
	}
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	h.AddUser(chatdb.User{UID: "u3", Email: "c@x.com", Username: "alfred"})
	alice := h.Session("u1")

	got, err := alice.SearchUsers(ctx, "al")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UID != "u3" {
		t.Fatalf("search = %+v, want only alfred", got)
	}

	all, err := alice.SearchUsers(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range all {
		if u.UID == "u1" {
			t.Fatal("search returned the caller")
		}
	}
}

func TestSignOutFiresAuthListener(t *testing.T) {
	h := newTestHub()
	sess := h.Session("u1")

	var events []*chatdb.User
	if _, err := sess.OnAuthStateChange(func(u *chatdb.User) { events = append(events, u) }, nil); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0] == nil || events[0].UID != "u1" {
		t.Fatalf("initial auth event = %+v", events)
	}

	if err := sess.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1] != nil {
		t.Fatalf("auth events after sign-out = %+v", events)
	}
	if sess.CurrentUserID() != "" {
		t.Fatal("CurrentUserID after sign-out")
	}
}

func TestSendUnresolvedIdentity(t *testing.T) {
	h := newTestHub()
	sess := h.Session("u1")
	err := sess.SendMessage(context.Background(), "hi", "", "u1", "u2")
	if !errors.Is(err, backend.ErrIdentityUnresolved) {
		t.Fatalf("send with empty key = %v", err)
	}
}
