// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package client

import (
	"context"
	"errors"
	"testing"

	"github.com/Shahzain333/Chat-Application/internal/backend"
	"github.com/Shahzain333/Chat-Application/internal/backend/memory"
	"github.com/Shahzain333/Chat-Application/internal/chatdb"
)

// flaky wraps a real backend and fails selected mutations on demand.
type flaky struct {
	backend.Service

	sendErr   error
	updateErr error
	deleteErr error
}

func (f *flaky) SendMessage(ctx context.Context, text, key, senderUID, recipientUID string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	return f.Service.SendMessage(ctx, text, key, senderUID, recipientUID)
}

func (f *flaky) UpdateMessage(ctx context.Context, key, messageID, newText string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Service.UpdateMessage(ctx, key, messageID, newText)
}

func (f *flaky) DeleteMessage(ctx context.Context, key, messageID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Service.DeleteMessage(ctx, key, messageID)
}

func newTestHub() *memory.Hub {
	h := memory.NewHub()
	h.AddUser(chatdb.User{UID: "u1", Email: "a@x.com", Username: "alice", FullName: "Alice"})
	h.AddUser(chatdb.User{UID: "u2", Email: "b@x.com", Username: "bob", FullName: "Bob"})
	return h
}

func startedClient(t *testing.T, svc backend.Service) *Client {
	t.Helper()
	c := New(svc)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func selectBob(t *testing.T, h *memory.Hub, c *Client) {
	t.Helper()
	bob, ok := h.User("u2")
	if !ok {
		t.Fatal("bob not registered")
	}
	if err := c.SelectUser(&bob); err != nil {
		t.Fatal(err)
	}
}

func TestStartBindsIdentity(t *testing.T) {
	h := newTestHub()
	c := startedClient(t, h.Session("u1"))

	cur := c.CurrentUser()
	if cur == nil || cur.UID != "u1" {
		t.Fatalf("current user = %+v", cur)
	}
	if got := c.Chats(); len(got) != 0 {
		t.Fatalf("chats before any message = %+v", got)
	}
}

func TestSelectAndSend(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	c := startedClient(t, h.Session("u1"))
	selectBob(t, h, c)

	if key := c.ActiveConversation(); key != "u1-u2" {
		t.Fatalf("active conversation = %q", key)
	}

	if err := c.SendMessage(ctx, "  hello  "); err != nil {
		t.Fatal(err)
	}

	// The confirmation push replaces the provisional entry; exactly one
	// confirmed message remains.
	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Text != "hello" || msgs[0].Provisional || msgs[0].Timestamp == nil {
		t.Fatalf("confirmed message = %+v", msgs[0])
	}

	chats := c.Chats()
	if len(chats) != 1 || chats[0].LastMessage != "hello" {
		t.Fatalf("chat list = %+v", chats)
	}
}

func TestSendBlankIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	c := startedClient(t, h.Session("u1"))
	selectBob(t, h, c)

	if err := c.SendMessage(ctx, "   "); err != nil {
		t.Fatal(err)
	}
	if got := c.Messages(); len(got) != 0 {
		t.Fatalf("messages after blank send = %+v", got)
	}
}

func TestSendFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	f := &flaky{Service: h.Session("u1")}
	c := startedClient(t, f)
	selectBob(t, h, c)

	f.sendErr = &backend.SendError{Err: errors.New("boom")}
	err := c.SendMessage(ctx, "hello")
	var sendErr *backend.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("send = %v, want SendError", err)
	}
	if got := c.Messages(); len(got) != 0 {
		t.Fatalf("messages after failed send = %+v", got)
	}
	if got := c.Chats(); len(got) != 0 {
		t.Fatalf("chat list after failed send = %+v", got)
	}
}

func TestEditRefreshesSummary(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	c := startedClient(t, h.Session("u1"))
	selectBob(t, h, c)

	if err := c.SendMessage(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if err := c.SendMessage(ctx, "second"); err != nil {
		t.Fatal(err)
	}

	msgs := c.Messages()
	if err := c.EditMessage(ctx, msgs[1].ID, "second, revised"); err != nil {
		t.Fatal(err)
	}
	got := c.Messages()
	if got[1].Text != "second, revised" || !got[1].Edited {
		t.Fatalf("edited message = %+v", got[1])
	}
	if chats := c.Chats(); chats[0].LastMessage != "second, revised" {
		t.Fatalf("summary after edit = %+v", chats[0])
	}

	// Editing a non-latest message leaves the summary alone.
	if err := c.EditMessage(ctx, msgs[0].ID, "first, revised"); err != nil {
		t.Fatal(err)
	}
	if chats := c.Chats(); chats[0].LastMessage != "second, revised" {
		t.Fatalf("summary after editing older message = %+v", chats[0])
	}
}

func TestEditFailureRestores(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	f := &flaky{Service: h.Session("u1")}
	c := startedClient(t, f)
	selectBob(t, h, c)

	if err := c.SendMessage(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	id := c.Messages()[0].ID

	f.updateErr = errors.New("backend down")
	if err := c.EditMessage(ctx, id, "hacked"); err == nil {
		t.Fatal("edit should fail")
	}
	got := c.Messages()[0]
	if got.Text != "hello" || got.Edited {
		t.Fatalf("message after failed edit = %+v", got)
	}
	if chats := c.Chats(); chats[0].LastMessage != "hello" {
		t.Fatalf("summary after failed edit = %+v", chats[0])
	}
}

func TestDeleteFallsBackSummary(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	c := startedClient(t, h.Session("u1"))
	selectBob(t, h, c)

	if err := c.SendMessage(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if err := c.SendMessage(ctx, "second"); err != nil {
		t.Fatal(err)
	}

	msgs := c.Messages()
	if err := c.DeleteMessage(ctx, msgs[1].ID); err != nil {
		t.Fatal(err)
	}
	if chats := c.Chats(); chats[0].LastMessage != "first" {
		t.Fatalf("summary after deleting latest = %+v", chats[0])
	}

	if err := c.DeleteMessage(ctx, msgs[0].ID); err != nil {
		t.Fatal(err)
	}
	chats := c.Chats()
	if chats[0].LastMessage != "" || chats[0].LastMessageTimestamp != nil {
		t.Fatalf("summary after deleting all = %+v", chats[0])
	}
}

func TestDeleteFailureRestores(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	f := &flaky{Service: h.Session("u1")}
	c := startedClient(t, f)
	selectBob(t, h, c)

	if err := c.SendMessage(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	id := c.Messages()[0].ID

	f.deleteErr = errors.New("backend down")
	if err := c.DeleteMessage(ctx, id); err == nil {
		t.Fatal("delete should fail")
	}
	if got := c.Messages(); len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("messages after failed delete = %+v", got)
	}
}

func TestDeleteConversationClearsSelection(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	c := startedClient(t, h.Session("u1"))
	selectBob(t, h, c)

	if err := c.SendMessage(ctx, "hi"); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteConversation(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	if got := c.Chats(); len(got) != 0 {
		t.Fatalf("chats after delete = %+v", got)
	}
	if c.SelectedUser() != nil || c.ActiveConversation() != "" {
		t.Fatal("selection survived conversation delete")
	}
}

func TestSelectWithoutIdentity(t *testing.T) {
	h := newTestHub()
	c := New(h.Session("u1"))
	// Not started: no auth push has bound the current user yet.
	bob, _ := h.User("u2")
	if err := c.SelectUser(&bob); !errors.Is(err, backend.ErrIdentityUnresolved) {
		t.Fatalf("select = %v, want ErrIdentityUnresolved", err)
	}
	if got := c.Messages(); len(got) != 0 {
		t.Fatalf("messages = %+v", got)
	}
	if err := c.SendMessage(context.Background(), "hi"); !errors.Is(err, backend.ErrIdentityUnresolved) {
		t.Fatalf("send = %v, want ErrIdentityUnresolved", err)
	}
}

func TestSignOutClearsState(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	c := startedClient(t, h.Session("u1"))
	selectBob(t, h, c)

	if err := c.SendMessage(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := c.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if c.CurrentUser() != nil || c.SelectedUser() != nil {
		t.Fatal("user state survived sign-out")
	}
	if len(c.Chats()) != 0 || len(c.Messages()) != 0 || c.ActiveConversation() != "" {
		t.Fatal("conversation state survived sign-out")
	}
}

func TestStalePushAfterReselect(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	h.AddUser(chatdb.User{UID: "u3", Email: "c@x.com", Username: "carol", FullName: "Carol"})
	c := startedClient(t, h.Session("u1"))
	selectBob(t, h, c)

	if err := c.SendMessage(ctx, "for bob"); err != nil {
		t.Fatal(err)
	}

	carol, _ := h.User("u3")
	if err := c.SelectUser(&carol); err != nil {
		t.Fatal(err)
	}
	if key := c.ActiveConversation(); key != "u1-u3" {
		t.Fatalf("active conversation = %q", key)
	}
	if got := c.Messages(); len(got) != 0 {
		t.Fatalf("messages leaked across conversations = %+v", got)
	}

	// A mutation in the old conversation must not reach the new scope.
	other := h.Session("u2")
	if err := other.SendMessage(ctx, "late push", "u1-u2", "u2", "u1"); err != nil {
		t.Fatal(err)
	}
	if got := c.Messages(); len(got) != 0 {
		t.Fatalf("stale conversation push landed = %+v", got)
	}
}
