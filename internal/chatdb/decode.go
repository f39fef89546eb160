// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package chatdb

import (
	"github.com/Shahzain333/Chat-Application/internal/tstamp"
)

// The FromMap decoders are the single entry point for raw backend payloads
// into local state. They run every payload through tstamp.NormalizeDeep so
// a transport-native timestamp can never leak into a decoded struct.

// UserFromMap decodes a raw user payload.
func UserFromMap(raw map[string]any) User {
	m := normalized(raw)
	return User{
		UID:       str(m["uid"]),
		Email:     str(m["email"]),
		Username:  str(m["username"]),
		FullName:  str(m["fullName"]),
		Image:     str(m["image"]),
		CreatedAt: ts(m["createdAt"]),
	}
}

// MessageFromMap decodes a raw message payload.
func MessageFromMap(raw map[string]any) Message {
	m := normalized(raw)
	msg := Message{
		ID:        str(m["id"]),
		Text:      str(m["text"]),
		Sender:    str(m["sender"]),
		Timestamp: ts(m["timestamp"]),
		EditedAt:  ts(m["editedAt"]),
	}
	if edited, ok := m["edited"].(bool); ok {
		msg.Edited = edited
	}
	return msg
}

// ChatSummaryFromMap decodes a raw chat summary payload.
func ChatSummaryFromMap(raw map[string]any) ChatSummary {
	m := normalized(raw)
	summary := ChatSummary{
		ID:                   str(m["id"]),
		LastMessage:          str(m["lastMessage"]),
		LastMessageTimestamp: ts(m["lastMessageTimestamp"]),
	}
	if users, ok := m["users"].([]any); ok {
		summary.Users = make([]User, 0, len(users))
		for _, u := range users {
			if um, ok := u.(map[string]any); ok {
				summary.Users = append(summary.Users, userFromNormalized(um))
			}
		}
	}
	return summary
}

func userFromNormalized(m map[string]any) User {
	return User{
		UID:       str(m["uid"]),
		Email:     str(m["email"]),
		Username:  str(m["username"]),
		FullName:  str(m["fullName"]),
		Image:     str(m["image"]),
		CreatedAt: ts(m["createdAt"]),
	}
}

func normalized(raw map[string]any) map[string]any {
	m, ok := tstamp.NormalizeDeep(raw).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func ts(v any) *tstamp.Timestamp {
	if t, ok := v.(tstamp.Timestamp); ok {
		return &t
	}
	return nil
}
