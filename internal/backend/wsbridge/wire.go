// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package wsbridge

import "encoding/json"

// Ops sent by the client. Every request carries a fresh id; the server
// answers with a result or error frame carrying the same id.
const (
	// OpSubscribe attaches a push stream. The request id becomes the
	// stream id used by later push frames.
	OpSubscribe = "subscribe"
	// OpUnsubscribe detaches a push stream by its stream id.
	OpUnsubscribe = "unsubscribe"
	// OpSend appends a message to a conversation.
	OpSend = "send"
	// OpEdit replaces a message's text.
	OpEdit = "edit"
	// OpDelete removes a message.
	OpDelete = "delete"
	// OpDeleteChat removes a conversation and its messages.
	OpDeleteChat = "deleteChat"
	// OpSearch looks up users by username prefix.
	OpSearch = "search"
	// OpSignOut ends the session.
	OpSignOut = "signOut"
)

// Subscription scopes.
const (
	// ScopeAuth streams auth state transitions; the payload is the user
	// record, or null when signed out.
	ScopeAuth = "auth"
	// ScopeProfile streams one user's profile record.
	ScopeProfile = "profile"
	// ScopeChats streams the session user's full conversation list.
	ScopeChats = "chats"
	// ScopeMessages streams one conversation's full message array.
	ScopeMessages = "messages"
)

// Frame kinds sent by the server.
const (
	// KindResult acknowledges a request, optionally with a payload.
	KindResult = "result"
	// KindError rejects a request with a code and message.
	KindError = "error"
	// KindPush delivers the full state of a subscribed scope.
	KindPush = "push"
	// KindDetached reports that a subscription died server-side.
	KindDetached = "detached"
)

// Error codes carried by error frames.
const (
	// CodeIdentityUnresolved means a conversation key could not be derived.
	CodeIdentityUnresolved = "identityUnresolved"
	// CodeEditNotAllowed means the edit target is absent or foreign.
	CodeEditNotAllowed = "editNotAllowed"
	// CodeDeleteNotAllowed means the delete target is absent or foreign.
	CodeDeleteNotAllowed = "deleteNotAllowed"
	// CodeSend means the backend rejected a send.
	CodeSend = "send"
	// CodeInternal is any other server failure.
	CodeInternal = "internal"
)

// ClientFrame is a request from the client to the server.
type ClientFrame struct {
	// Op selects the operation.
	Op string `json:"op"`

	// ID correlates the request with its result. For OpUnsubscribe it is
	// the stream id to detach.
	ID string `json:"id"`

	// Scope selects the stream for OpSubscribe.
	Scope string `json:"scope,omitempty"`

	// UID is the target user for profile subscriptions.
	UID string `json:"uid,omitempty"`

	// Key is the conversation key for message scopes and mutations.
	Key string `json:"key,omitempty"`

	// Text is the message body for sends and edits.
	Text string `json:"text,omitempty"`

	// MessageID is the target message for edits and deletes.
	MessageID string `json:"messageId,omitempty"`

	// SenderUID and RecipientUID identify the participants on a send.
	SenderUID    string `json:"senderUid,omitempty"`
	RecipientUID string `json:"recipientUid,omitempty"`

	// Term is the username prefix for searches.
	Term string `json:"term,omitempty"`
}

// ServerFrame is a message from the server to the client.
type ServerFrame struct {
	// Kind is the frame kind.
	Kind string `json:"kind"`

	// ID is the request id for results and errors, or the stream id for
	// pushes and detach notices.
	ID string `json:"id"`

	// Code is the error code on error frames.
	Code string `json:"code,omitempty"`

	// Message is a human-readable description on error and detach frames.
	Message string `json:"message,omitempty"`

	// Payload is the kind-specific body.
	Payload json.RawMessage `json:"payload,omitempty"`
}
