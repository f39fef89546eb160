// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package chatdb defines the chat data model shared by local state and the
// backend implementations.
package chatdb

import (
	"github.com/Shahzain333/Chat-Application/internal/tstamp"
)

// User represents a chat user. The backend owns user records; the client
// only caches them.
type User struct {
	// UID is the opaque identifier assigned by the auth provider.
	UID string `firestore:"uid" json:"uid"`

	// Email is the stable identity key used for message authorship.
	Email string `firestore:"email" json:"email"`

	// Username is the user's handle.
	Username string `firestore:"username" json:"username"`

	// FullName is the user's display name.
	FullName string `firestore:"fullName" json:"fullName"`

	// Image is the URL of the user's avatar.
	Image string `firestore:"image" json:"image"`

	// CreatedAt is the timestamp when the user signed up.
	CreatedAt *tstamp.Timestamp `firestore:"createdAt" json:"createdAt,omitempty"`
}

// ChatSummary is one entry in the current user's conversation list. The
// last-message fields are denormalized from the message sequence and must
// always reflect the chronologically latest non-deleted message.
type ChatSummary struct {
	// ID is the canonical conversation key.
	ID string `firestore:"id" json:"id"`

	// Users are the two participants' cached records.
	Users []User `firestore:"users" json:"users"`

	// LastMessage is the text of the latest message, or empty when the
	// conversation has none.
	LastMessage string `firestore:"lastMessage" json:"lastMessage"`

	// LastMessageTimestamp is the timestamp of the latest message, or nil
	// when the conversation has none.
	LastMessageTimestamp *tstamp.Timestamp `firestore:"lastMessageTimestamp" json:"lastMessageTimestamp,omitempty"`
}

// Message is a single message in a conversation.
type Message struct {
	// ID is the backend-assigned identifier, or a temporary client id
	// while the message is provisional.
	ID string `firestore:"id" json:"id"`

	// Text is the message body.
	Text string `firestore:"text" json:"text"`

	// Sender is the author's identity key (email).
	Sender string `firestore:"sender" json:"sender"`

	// Timestamp is the backend-assigned time, or a local placeholder
	// while the message is provisional.
	Timestamp *tstamp.Timestamp `firestore:"timestamp" json:"timestamp,omitempty"`

	// Edited reports whether the message text has been changed after
	// sending.
	Edited bool `firestore:"edited" json:"edited"`

	// EditedAt is the time of the last edit, or nil if never edited.
	EditedAt *tstamp.Timestamp `firestore:"editedAt" json:"editedAt,omitempty"`

	// Provisional is true only for locally-created messages that the
	// backend has not yet confirmed. Never persisted.
	Provisional bool `firestore:"-" json:"-"`
}

// OtherUser returns the participant that is not the given user, matched by
// email identity.
func (c ChatSummary) OtherUser(self User) (User, bool) {
	for _, u := range c.Users {
		if u.Email != self.Email {
			return u, true
		}
	}
	return User{}, false
}
