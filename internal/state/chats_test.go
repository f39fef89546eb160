// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"testing"

	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/tstamp"
)

func ts(seconds int64) *tstamp.Timestamp {
	return &tstamp.Timestamp{Seconds: seconds}
}

func TestReplaceAllIdempotent(t *testing.T) {
	s := NewChatStore()
	chats := []chatdb.ChatSummary{
		{ID: "a-b", LastMessage: "hi", LastMessageTimestamp: ts(10)},
		{ID: "a-c", LastMessage: "yo", LastMessageTimestamp: ts(20)},
	}
	s.ReplaceAll(chats)
	s.ReplaceAll(chats)

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	got, ok := s.Get("a-b")
	if !ok || got.LastMessage != "hi" {
		t.Fatalf("Get(a-b) = %+v, %v", got, ok)
	}
}

func TestSortedByRecency(t *testing.T) {
	s := NewChatStore()
	s.ReplaceAll([]chatdb.ChatSummary{
		{ID: "with-30", LastMessageTimestamp: ts(30)},
		{ID: "empty-1"},
		{ID: "with-10", LastMessageTimestamp: ts(10)},
		{ID: "empty-2"},
	})

	got := s.SortedByRecency()
	wantOrder := []string{"with-30", "with-10", "empty-1", "empty-2"}
	if len(got) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestApplyLastMessage(t *testing.T) {
	s := NewChatStore()
	s.ReplaceAll([]chatdb.ChatSummary{{ID: "a-b", LastMessage: "old", LastMessageTimestamp: ts(1)}})

	s.ApplyLastMessage("a-b", "new", ts(2))
	got, _ := s.Get("a-b")
	if got.LastMessage != "new" || got.LastMessageTimestamp.Seconds != 2 {
		t.Fatalf("summary = %+v", got)
	}

	// Unknown conversations are a no-op.
	s.ApplyLastMessage("nope", "x", ts(3))
	if s.Len() != 1 {
		t.Fatalf("Len = %d after no-op update", s.Len())
	}
}

func TestRemove(t *testing.T) {
	s := NewChatStore()
	s.ReplaceAll([]chatdb.ChatSummary{{ID: "a-b"}, {ID: "a-c"}})
	s.Remove("a-b")
	s.Remove("a-b")
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if _, ok := s.Get("a-b"); ok {
		t.Fatal("removed summary still present")
	}
}
