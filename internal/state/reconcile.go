// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"github.com/Shahzain333/Chat-Application/internal/tstamp"
)

// Reconciler keeps the ChatStore's denormalized last-message fields
// consistent with the MessageStore. Every rule recomputes the true latest
// message rather than appending, so replaying a push is harmless, and the
// latest check is keyed by message id, never by text equality.
type Reconciler struct {
	chats    *ChatStore
	messages *MessageStore
}

// NewReconciler returns a Reconciler spanning the two stores.
func NewReconciler(chats *ChatStore, messages *MessageStore) *Reconciler {
	return &Reconciler{chats: chats, messages: messages}
}

// Resync recomputes the summary for a conversation from the message store.
// Applied after a confirmed send, a full-list push, or a delete; falls
// back to an empty summary when no confirmed message remains. Ignored when
// the message store is scoped to a different conversation, since only the
// active conversation's messages are local.
func (r *Reconciler) Resync(chatID string) {
	if chatID == "" || r.messages.Scope() != chatID {
		return
	}
	if latest, ok := r.messages.LatestConfirmed(); ok {
		r.chats.ApplyLastMessage(chatID, latest.Text, latest.Timestamp)
		return
	}
	r.chats.ApplyLastMessage(chatID, "", nil)
}

// AfterEdit propagates an edit into the summary. Only an edit of the
// latest message touches the summary; its timestamp is refreshed to now
// because an edit carries no ordering signal of its own. Editing an older
// message leaves the summary untouched.
func (r *Reconciler) AfterEdit(chatID, messageID string) {
	if chatID == "" || r.messages.Scope() != chatID {
		return
	}
	latest, ok := r.messages.LatestConfirmed()
	if !ok || latest.ID != messageID {
		return
	}
	now := tstamp.Now()
	r.chats.ApplyLastMessage(chatID, latest.Text, &now)
}
