// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"testing"

	"github.com/Shahzain333/Chat-Application/internal/chatdb"
)

func newReconciled(t *testing.T, chatID string) (*ChatStore, *MessageStore, *Reconciler) {
	t.Helper()
	chats := NewChatStore()
	chats.ReplaceAll([]chatdb.ChatSummary{{ID: chatID}})
	messages := NewMessageStore()
	messages.Reset(chatID)
	return chats, messages, NewReconciler(chats, messages)
}

func TestResyncAfterPush(t *testing.T) {
	chats, messages, rec := newReconciled(t, "u1-u2")

	messages.ReplaceAll("u1-u2", []chatdb.Message{
		{ID: "m1", Text: "first", Timestamp: ts(10)},
		{ID: "m2", Text: "second", Timestamp: ts(20)},
	})
	rec.Resync("u1-u2")

	got, _ := chats.Get("u1-u2")
	if got.LastMessage != "second" || got.LastMessageTimestamp.Seconds != 20 {
		t.Fatalf("summary = %+v", got)
	}

	// Replaying the same state must not change anything.
	rec.Resync("u1-u2")
	again, _ := chats.Get("u1-u2")
	if again.LastMessage != "second" || again.LastMessageTimestamp.Seconds != 20 {
		t.Fatalf("summary after replay = %+v", again)
	}
}

func TestResyncFallbackOnDelete(t *testing.T) {
	chats, messages, rec := newReconciled(t, "u1-u2")
	messages.ReplaceAll("u1-u2", []chatdb.Message{
		{ID: "m1", Text: "first", Timestamp: ts(10)},
		{ID: "m2", Text: "second", Timestamp: ts(20)},
	})
	rec.Resync("u1-u2")

	if err := messages.ApplyDelete("m2"); err != nil {
		t.Fatal(err)
	}
	rec.Resync("u1-u2")
	got, _ := chats.Get("u1-u2")
	if got.LastMessage != "first" || got.LastMessageTimestamp.Seconds != 10 {
		t.Fatalf("summary after deleting latest = %+v", got)
	}

	if err := messages.ApplyDelete("m1"); err != nil {
		t.Fatal(err)
	}
	rec.Resync("u1-u2")
	got, _ = chats.Get("u1-u2")
	if got.LastMessage != "" || got.LastMessageTimestamp != nil {
		t.Fatalf("summary after deleting all = %+v", got)
	}
}

func TestResyncIgnoresProvisional(t *testing.T) {
	chats, messages, rec := newReconciled(t, "u1-u2")
	messages.AppendOptimistic("unconfirmed", "a@x.com")
	rec.Resync("u1-u2")

	got, _ := chats.Get("u1-u2")
	if got.LastMessage != "" || got.LastMessageTimestamp != nil {
		t.Fatalf("summary reflects unconfirmed send: %+v", got)
	}
}

func TestResyncIgnoresOtherScope(t *testing.T) {
	chats, messages, rec := newReconciled(t, "u1-u2")
	messages.ReplaceAll("u1-u2", []chatdb.Message{{ID: "m1", Text: "hi", Timestamp: ts(10)}})

	rec.Resync("u1-u3")
	rec.Resync("")
	got, _ := chats.Get("u1-u2")
	if got.LastMessage != "" {
		t.Fatalf("summary for other scope changed: %+v", got)
	}
}

func TestAfterEditLatest(t *testing.T) {
	chats, messages, rec := newReconciled(t, "u1-u2")
	messages.ReplaceAll("u1-u2", []chatdb.Message{
		{ID: "m1", Text: "first", Timestamp: ts(10)},
		{ID: "m2", Text: "second", Timestamp: ts(20)},
	})
	rec.Resync("u1-u2")

	if err := messages.ApplyEdit("m2", "second, edited"); err != nil {
		t.Fatal(err)
	}
	rec.AfterEdit("u1-u2", "m2")

	got, _ := chats.Get("u1-u2")
	if got.LastMessage != "second, edited" {
		t.Fatalf("summary = %+v", got)
	}
	// Edit carries no ordering signal, the summary timestamp is refreshed.
	if got.LastMessageTimestamp == nil || got.LastMessageTimestamp.Seconds < 20 {
		t.Fatalf("summary timestamp not refreshed: %+v", got.LastMessageTimestamp)
	}
}

func TestAfterEditNotLatest(t *testing.T) {
	chats, messages, rec := newReconciled(t, "u1-u2")
	messages.ReplaceAll("u1-u2", []chatdb.Message{
		{ID: "m1", Text: "first", Timestamp: ts(10)},
		{ID: "m2", Text: "second", Timestamp: ts(20)},
	})
	rec.Resync("u1-u2")

	if err := messages.ApplyEdit("m1", "first, edited"); err != nil {
		t.Fatal(err)
	}
	rec.AfterEdit("u1-u2", "m1")

	got, _ := chats.Get("u1-u2")
	if got.LastMessage != "second" || got.LastMessageTimestamp.Seconds != 20 {
		t.Fatalf("summary changed by edit of older message: %+v", got)
	}
}

// Two messages with identical text must reconcile by id, not text.
func TestAfterEditDuplicateText(t *testing.T) {
	chats, messages, rec := newReconciled(t, "u1-u2")
	messages.ReplaceAll("u1-u2", []chatdb.Message{
		{ID: "m1", Text: "same", Timestamp: ts(10)},
		{ID: "m2", Text: "same", Timestamp: ts(20)},
	})
	rec.Resync("u1-u2")

	if err := messages.ApplyEdit("m1", "changed"); err != nil {
		t.Fatal(err)
	}
	rec.AfterEdit("u1-u2", "m1")

	got, _ := chats.Get("u1-u2")
	if got.LastMessage != "same" {
		t.Fatalf("summary keyed by text, not id: %+v", got)
	}
}
