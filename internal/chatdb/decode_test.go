// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package chatdb

import (
	"testing"
	"time"

	"github.com/Shahzain333/Chat-Application/internal/tstamp"
)

func TestMessageFromMap(t *testing.T) {
	msg := MessageFromMap(map[string]any{
		"id":        "m1",
		"text":      "hello",
		"sender":    "a@x.com",
		"timestamp": map[string]any{"seconds": float64(100), "nanoseconds": float64(0)},
		"edited":    true,
		"editedAt":  time.Unix(120, 0),
	})
	if msg.ID != "m1" || msg.Text != "hello" || msg.Sender != "a@x.com" {
		t.Fatalf("decoded message = %+v", msg)
	}
	if msg.Timestamp == nil || *msg.Timestamp != (tstamp.Timestamp{Seconds: 100}) {
		t.Fatalf("timestamp = %v", msg.Timestamp)
	}
	if !msg.Edited || msg.EditedAt == nil || msg.EditedAt.Seconds != 120 {
		t.Fatalf("edit fields = %v %v", msg.Edited, msg.EditedAt)
	}
	if msg.Provisional {
		t.Fatal("decoded message must not be provisional")
	}
}

func TestMessageFromMapMissingTimestamp(t *testing.T) {
	msg := MessageFromMap(map[string]any{"id": "m1", "text": "hi"})
	if msg.Timestamp != nil {
		t.Fatalf("timestamp = %v, want nil", msg.Timestamp)
	}
}

func TestChatSummaryFromMap(t *testing.T) {
	summary := ChatSummaryFromMap(map[string]any{
		"id":          "u1-u2",
		"lastMessage": "hey",
		"lastMessageTimestamp": map[string]any{
			"seconds":     float64(42),
			"nanoseconds": float64(7),
		},
		"users": []any{
			map[string]any{"uid": "u1", "email": "a@x.com", "createdAt": time.Unix(5, 0)},
			map[string]any{"uid": "u2", "email": "b@x.com"},
		},
	})
	if summary.ID != "u1-u2" || summary.LastMessage != "hey" {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.LastMessageTimestamp == nil || summary.LastMessageTimestamp.Seconds != 42 {
		t.Fatalf("lastMessageTimestamp = %v", summary.LastMessageTimestamp)
	}
	if len(summary.Users) != 2 || summary.Users[0].CreatedAt == nil || summary.Users[0].CreatedAt.Seconds != 5 {
		t.Fatalf("users = %+v", summary.Users)
	}
}

func TestOtherUser(t *testing.T) {
	self := User{UID: "u1", Email: "a@x.com"}
	peer := User{UID: "u2", Email: "b@x.com"}
	summary := ChatSummary{ID: "u1-u2", Users: []User{self, peer}}

	got, ok := summary.OtherUser(self)
	if !ok || got.UID != "u2" {
		t.Fatalf("OtherUser = %+v, %v", got, ok)
	}
	if _, ok := (ChatSummary{}).OtherUser(self); ok {
		t.Fatal("OtherUser on empty summary should fail")
	}
}
