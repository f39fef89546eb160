// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package firestoredb implements the backend service on Cloud Firestore.
// Layout: users/{uid} profile docs, chats/{key} summary docs carrying a
// uids array for membership queries, and chats/{key}/messages/{id} docs.
// Subscriptions are Firestore snapshot listeners delivering the full state
// of their scope on every change.
package firestoredb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/auth"
	"github.com/cenkalti/backoff/v5"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Shahzain333/Chat-Application/internal/backend"
	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/state"
	"github.com/Shahzain333/Chat-Application/internal/subscribe"
)

const (
	usersCollection    = "users"
	chatsCollection    = "chats"
	messagesCollection = "messages"

	// sendMaxTries bounds the retry of transient send failures before the
	// optimistic message is rolled back.
	sendMaxTries = 3

	authFetchTimeout = 10 * time.Second
)

// Backend is a Firestore-backed backend.Service bound to one signed-in
// user.
type Backend struct {
	store  *firestore.Client
	fbAuth *auth.Client

	mu       sync.Mutex
	uid      string
	email    string
	nextAuth int
	authSubs map[int]func(*chatdb.User)
}

var _ backend.Service = (*Backend)(nil)

// New returns a Backend for the given user. The uid is verified against
// Firebase Auth so a stale session fails fast instead of producing
// unauthorized writes later.
func New(ctx context.Context, store *firestore.Client, fbAuth *auth.Client, uid string) (*Backend, error) {
	rec, err := fbAuth.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("firestoredb: verifying user %s: %w", uid, err)
	}
	return &Backend{
		store:    store,
		fbAuth:   fbAuth,
		uid:      uid,
		email:    rec.Email,
		authSubs: map[int]func(*chatdb.User){},
	}, nil
}

// CurrentUserID implements backend.Service.
func (b *Backend) CurrentUserID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uid
}

// SignOut revokes the user's refresh tokens and fires the auth listeners
// with no user.
func (b *Backend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	uid := b.uid
	b.mu.Unlock()
	if uid == "" {
		return nil
	}
	if err := b.fbAuth.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("firestoredb: revoking refresh tokens: %w", err)
	}

	b.mu.Lock()
	b.uid = ""
	listeners := make([]func(*chatdb.User), 0, len(b.authSubs))
	for _, fn := range b.authSubs {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()
	for _, fn := range listeners {
		fn(nil)
	}
	return nil
}

// OnAuthStateChange implements backend.Service. The current state is
// delivered asynchronously on attach.
func (b *Backend) OnAuthStateChange(onChange func(*chatdb.User), _ func(error)) (subscribe.Unsubscribe, error) {
	b.mu.Lock()
	id := b.nextAuth
	b.nextAuth++
	b.authSubs[id] = onChange
	uid := b.uid
	b.mu.Unlock()

	go func() {
		if uid == "" {
			onChange(nil)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), authFetchTimeout)
		defer cancel()
		u := b.currentUser(ctx, uid)
		onChange(&u)
	}()

	return func() {
		b.mu.Lock()
		delete(b.authSubs, id)
		b.mu.Unlock()
	}, nil
}

// currentUser loads the profile doc, falling back to the auth record when
// the profile has not been written yet.
func (b *Backend) currentUser(ctx context.Context, uid string) chatdb.User {
	snap, err := b.store.Collection(usersCollection).Doc(uid).Get(ctx)
	if err == nil && snap.Exists() {
		u := chatdb.UserFromMap(snap.Data())
		if u.UID == "" {
			u.UID = uid
		}
		return u
	}
	b.mu.Lock()
	email := b.email
	b.mu.Unlock()
	return chatdb.User{UID: uid, Email: email}
}

// SubscribeUserProfile implements backend.Service with a document
// snapshot listener.
func (b *Backend) SubscribeUserProfile(uid string, onPush func(chatdb.User), onErr func(error)) (subscribe.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(context.Background())
	iter := b.store.Collection(usersCollection).Doc(uid).Snapshots(ctx)
	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				deliverListenErr("profile/"+uid, err, onErr)
				return
			}
			if !snap.Exists() {
				continue
			}
			u := chatdb.UserFromMap(snap.Data())
			if u.UID == "" {
				u.UID = uid
			}
			onPush(u)
		}
	}()
	return subscribe.Unsubscribe(cancel), nil
}

// SubscribeChatList implements backend.Service, listening on every chat
// whose uids array contains the current user.
func (b *Backend) SubscribeChatList(onPush func([]chatdb.ChatSummary), onErr func(error)) (subscribe.Unsubscribe, error) {
	uid := b.CurrentUserID()
	if uid == "" {
		return nil, backend.ErrIdentityUnresolved
	}
	ctx, cancel := context.WithCancel(context.Background())
	iter := b.store.Collection(chatsCollection).
		Where("uids", "array-contains", uid).
		Snapshots(ctx)
	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				deliverListenErr("chats", err, onErr)
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				deliverListenErr("chats", err, onErr)
				return
			}
			chats := make([]chatdb.ChatSummary, 0, len(docs))
			for _, doc := range docs {
				summary := chatdb.ChatSummaryFromMap(doc.Data())
				if summary.ID == "" {
					summary.ID = doc.Ref.ID
				}
				chats = append(chats, summary)
			}
			onPush(chats)
		}
	}()
	return subscribe.Unsubscribe(cancel), nil
}

// SubscribeMessages implements backend.Service with a collection snapshot
// listener on one conversation.
func (b *Backend) SubscribeMessages(conversationKey string, onPush func([]chatdb.Message), onErr func(error)) (subscribe.Unsubscribe, error) {
	if conversationKey == "" {
		return nil, backend.ErrIdentityUnresolved
	}
	ctx, cancel := context.WithCancel(context.Background())
	iter := b.messages(conversationKey).Query.Snapshots(ctx)
	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				deliverListenErr("messages/"+conversationKey, err, onErr)
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				deliverListenErr("messages/"+conversationKey, err, onErr)
				return
			}
			msgs := make([]chatdb.Message, 0, len(docs))
			for _, doc := range docs {
				m := chatdb.MessageFromMap(doc.Data())
				if m.ID == "" {
					m.ID = doc.Ref.ID
				}
				msgs = append(msgs, m)
			}
			onPush(msgs)
		}
	}()
	return subscribe.Unsubscribe(cancel), nil
}

// SendMessage implements backend.Service. The chat doc, the message, and
// the summary are written in one transaction; transient failures are
// retried briefly before surfacing a SendError.
func (b *Backend) SendMessage(ctx context.Context, text, conversationKey, senderUID, recipientUID string) error {
	if conversationKey == "" || senderUID == "" || recipientUID == "" {
		return backend.ErrIdentityUnresolved
	}
	op := func() (struct{}, error) {
		if err := b.sendOnce(ctx, text, conversationKey, senderUID, recipientUID); err != nil {
			if transient(err) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}
	if _, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(sendMaxTries),
	); err != nil {
		return &backend.SendError{Err: err}
	}
	return nil
}

func (b *Backend) sendOnce(ctx context.Context, text, conversationKey, senderUID, recipientUID string) error {
	return b.store.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		chatRef := b.store.Collection(chatsCollection).Doc(conversationKey)
		chatSnap, err := tx.Get(chatRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("firestoredb: getting chat doc: %w", err)
		}

		chatData := map[string]any{
			"id":                   conversationKey,
			"lastMessage":          text,
			"lastMessageTimestamp": firestore.ServerTimestamp,
		}
		if chatSnap == nil || !chatSnap.Exists() {
			users := make([]chatdb.User, 0, 2)
			for _, uid := range []string{senderUID, recipientUID} {
				snap, err := tx.Get(b.store.Collection(usersCollection).Doc(uid))
				if err != nil {
					return fmt.Errorf("firestoredb: getting participant %s: %w", uid, err)
				}
				u := chatdb.UserFromMap(snap.Data())
				if u.UID == "" {
					u.UID = uid
				}
				users = append(users, u)
			}
			chatData["uids"] = []string{senderUID, recipientUID}
			chatData["users"] = users
		}

		msgRef := chatRef.Collection(messagesCollection).NewDoc()
		if err := tx.Set(msgRef, map[string]any{
			"id":        msgRef.ID,
			"text":      text,
			"sender":    b.email,
			"timestamp": firestore.ServerTimestamp,
			"edited":    false,
		}); err != nil {
			return fmt.Errorf("firestoredb: writing message: %w", err)
		}
		if err := tx.Set(chatRef, chatData, firestore.MergeAll); err != nil {
			return fmt.Errorf("firestoredb: writing chat summary: %w", err)
		}
		return nil
	})
}

// UpdateMessage implements backend.Service under the authorship rule, and
// refreshes the summary when the edited message is the latest.
func (b *Backend) UpdateMessage(ctx context.Context, conversationKey, messageID, newText string) error {
	msgRef := b.messages(conversationKey).Doc(messageID)
	if err := b.checkAuthor(ctx, msgRef, state.ErrEditNotAllowed); err != nil {
		return err
	}

	if _, err := msgRef.Update(ctx, []firestore.Update{
		{Path: "text", Value: newText},
		{Path: "edited", Value: true},
		{Path: "editedAt", Value: firestore.ServerTimestamp},
	}); err != nil {
		return fmt.Errorf("firestoredb: updating message: %w", err)
	}

	latest, ok, err := b.latestMessage(ctx, conversationKey)
	if err != nil {
		return err
	}
	if ok && latest.ID == messageID {
		if _, err := b.chat(conversationKey).Set(ctx, map[string]any{
			"lastMessage":          newText,
			"lastMessageTimestamp": firestore.ServerTimestamp,
		}, firestore.MergeAll); err != nil {
			return fmt.Errorf("firestoredb: refreshing chat summary: %w", err)
		}
	}
	return nil
}

// DeleteMessage implements backend.Service, recomputing the summary from
// the latest remaining message.
func (b *Backend) DeleteMessage(ctx context.Context, conversationKey, messageID string) error {
	msgRef := b.messages(conversationKey).Doc(messageID)
	if err := b.checkAuthor(ctx, msgRef, state.ErrDeleteNotAllowed); err != nil {
		return err
	}
	if _, err := msgRef.Delete(ctx); err != nil {
		return fmt.Errorf("firestoredb: deleting message: %w", err)
	}

	summary := map[string]any{
		"lastMessage":          "",
		"lastMessageTimestamp": nil,
	}
	if latest, ok, err := b.latestMessage(ctx, conversationKey); err != nil {
		return err
	} else if ok {
		summary["lastMessage"] = latest.Text
		if latest.Timestamp != nil {
			summary["lastMessageTimestamp"] = latest.Timestamp.Time()
		}
	}
	if _, err := b.chat(conversationKey).Set(ctx, summary, firestore.MergeAll); err != nil {
		return fmt.Errorf("firestoredb: refreshing chat summary: %w", err)
	}
	return nil
}

// DeleteConversation removes the chat doc and its full message
// subcollection with a bulk writer.
func (b *Backend) DeleteConversation(ctx context.Context, conversationKey string) error {
	if conversationKey == "" {
		return backend.ErrIdentityUnresolved
	}
	bw := b.store.BulkWriter(ctx)
	refs := b.messages(conversationKey).DocumentRefs(ctx)
	for {
		ref, err := refs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("firestoredb: listing messages to delete: %w", err)
		}
		if _, err := bw.Delete(ref); err != nil {
			return fmt.Errorf("firestoredb: queueing message delete: %w", err)
		}
	}
	if _, err := bw.Delete(b.chat(conversationKey)); err != nil {
		return fmt.Errorf("firestoredb: queueing chat delete: %w", err)
	}
	bw.End()
	return nil
}

// SearchUsers implements backend.Service with a username prefix range
// query.
func (b *Backend) SearchUsers(ctx context.Context, term string) ([]chatdb.User, error) {
	uid := b.CurrentUserID()
	iter := b.store.Collection(usersCollection).
		Where("username", ">=", term).
		Where("username", "<=", term+"\uf8ff").
		Documents(ctx)
	defer iter.Stop()

	var out []chatdb.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestoredb: searching users: %w", err)
		}
		u := chatdb.UserFromMap(doc.Data())
		if u.UID == "" {
			u.UID = doc.Ref.ID
		}
		if u.UID == uid {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (b *Backend) chat(conversationKey string) *firestore.DocumentRef {
	return b.store.Collection(chatsCollection).Doc(conversationKey)
}

func (b *Backend) messages(conversationKey string) *firestore.CollectionRef {
	return b.chat(conversationKey).Collection(messagesCollection)
}

// checkAuthor fails with notAllowed when the message is absent or not
// authored by the current user.
func (b *Backend) checkAuthor(ctx context.Context, msgRef *firestore.DocumentRef, notAllowed error) error {
	snap, err := msgRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("firestoredb: message %s not found: %w", msgRef.ID, notAllowed)
		}
		return fmt.Errorf("firestoredb: getting message %s: %w", msgRef.ID, err)
	}
	if msg := chatdb.MessageFromMap(snap.Data()); msg.Sender != b.email {
		return fmt.Errorf("firestoredb: message %s not authored by caller: %w", msgRef.ID, notAllowed)
	}
	return nil
}

func (b *Backend) latestMessage(ctx context.Context, conversationKey string) (chatdb.Message, bool, error) {
	doc, err := b.messages(conversationKey).
		Query.OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx).
		Next()
	if err == iterator.Done {
		return chatdb.Message{}, false, nil
	}
	if err != nil {
		return chatdb.Message{}, false, fmt.Errorf("firestoredb: getting latest message: %w", err)
	}
	m := chatdb.MessageFromMap(doc.Data())
	if m.ID == "" {
		m.ID = doc.Ref.ID
	}
	return m, true, nil
}

// deliverListenErr reports a listener failure unless it is the cancel
// from our own detach.
func deliverListenErr(scope string, err error, onErr func(error)) {
	if status.Code(err) == codes.Canceled {
		return
	}
	if onErr != nil {
		onErr(&backend.SubscriptionError{Scope: scope, Err: err})
	}
}

func transient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}
