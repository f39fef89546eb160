// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package subscribe manages the lifecycle of live push subscriptions. The
// manager guarantees at most one active subscription per scope: attaching
// to a scope detaches whatever was live there, and pushes from a
// superseded subscription are dropped even if the transport delivers them
// late. A stale listener is a correctness bug, not just a leak, because it
// can re-deliver updates for a conversation no longer displayed.
package subscribe

import (
	"log/slog"
	"sync"
)

// Unsubscribe detaches a subscription. Safe to call more than once.
type Unsubscribe func()

// Subscribable is a capability for any push-transport: subscribing
// registers a handler and yields a detach handle. Transport failures are
// delivered to onErr; the subscription is then dead and is not retried.
type Subscribable[T any] interface {
	Subscribe(onPush func(T), onErr func(error)) (Unsubscribe, error)
}

// Func adapts a closure to Subscribable.
type Func[T any] func(onPush func(T), onErr func(error)) (Unsubscribe, error)

// Subscribe implements Subscribable.
func (f Func[T]) Subscribe(onPush func(T), onErr func(error)) (Unsubscribe, error) {
	return f(onPush, onErr)
}

// State is the lifecycle state of one scope.
type State int

const (
	// StateUnsubscribed means no subscription is live for the scope.
	StateUnsubscribed State = iota
	// StateSubscribing means a subscription is being attached.
	StateSubscribing
	// StateActive means pushes are being delivered.
	StateActive
	// StateError means the transport failed; the caller may attach again.
	StateError
)

// Well-known scopes. Each holds at most one live subscription, so
// attaching the messages scope for a new conversation implicitly detaches
// the previous conversation's stream.
const (
	// ScopeProfile is the signed-in user's profile document.
	ScopeProfile = "profile"
	// ScopePeer is the selected conversation partner's profile document.
	ScopePeer = "peer"
	// ScopeChatList is the signed-in user's conversation list.
	ScopeChatList = "chats"
	// ScopeMessages is the active conversation's message stream.
	ScopeMessages = "messages"
)

// Manager tracks one subscription slot per scope.
type Manager struct {
	mu     sync.Mutex
	scopes map[string]*scopeEntry
}

type scopeEntry struct {
	state  State
	gen    uint64
	detach Unsubscribe
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{scopes: map[string]*scopeEntry{}}
}

// Attach subscribes src under the given scope, detaching any previous
// subscription for that scope first. The returned handle detaches only
// this attachment and is idempotent.
func Attach[T any](m *Manager, scope string, src Subscribable[T], onPush func(T), onErr func(error)) (Unsubscribe, error) {
	gen, prev := m.begin(scope)
	if prev != nil {
		prev()
	}

	push := func(v T) {
		if !m.live(scope, gen) {
			return
		}
		// A handler fault must not tear down the subscription.
		defer func() {
			if r := recover(); r != nil {
				slog.Error("subscribe: push handler panic", "scope", scope, "panic", r)
			}
		}()
		onPush(v)
	}
	fail := func(err error) {
		if !m.markError(scope, gen) {
			return
		}
		slog.Error("subscribe: transport failure", "scope", scope, "error", err)
		if onErr != nil {
			onErr(err)
		}
	}

	detach, err := src.Subscribe(push, fail)
	if err != nil {
		m.markError(scope, gen)
		return nil, err
	}
	m.activate(scope, gen, detach)
	return func() { m.detachGen(scope, gen) }, nil
}

// Detach tears down the scope's current subscription, if any.
func (m *Manager) Detach(scope string) {
	m.mu.Lock()
	e, ok := m.scopes[scope]
	var detach Unsubscribe
	if ok {
		detach = e.detach
		e.detach = nil
		e.state = StateUnsubscribed
		e.gen++
	}
	m.mu.Unlock()
	if detach != nil {
		detach()
	}
}

// DetachAll tears down every live subscription, used on sign-out.
func (m *Manager) DetachAll() {
	m.mu.Lock()
	var detaches []Unsubscribe
	for _, e := range m.scopes {
		if e.detach != nil {
			detaches = append(detaches, e.detach)
			e.detach = nil
		}
		e.state = StateUnsubscribed
		e.gen++
	}
	m.mu.Unlock()
	for _, d := range detaches {
		d()
	}
}

// State reports the scope's lifecycle state.
func (m *Manager) State(scope string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.scopes[scope]; ok {
		return e.state
	}
	return StateUnsubscribed
}

// begin claims the scope for a new attachment, returning its generation
// and the previous detach handle. The handle is invoked by the caller
// outside the lock; a transport detach may block on its own delivery
// goroutine.
func (m *Manager) begin(scope string) (uint64, Unsubscribe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.scopes[scope]
	if !ok {
		e = &scopeEntry{}
		m.scopes[scope] = e
	}
	prev := e.detach
	e.detach = nil
	e.gen++
	e.state = StateSubscribing
	return e.gen, prev
}

func (m *Manager) activate(scope string, gen uint64, detach Unsubscribe) {
	m.mu.Lock()
	e, ok := m.scopes[scope]
	if !ok || e.gen != gen {
		// Superseded while subscribing; the new owner wins.
		m.mu.Unlock()
		detach()
		return
	}
	e.state = StateActive
	e.detach = detach
	m.mu.Unlock()
}

func (m *Manager) live(scope string, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.scopes[scope]
	return ok && e.gen == gen && e.state != StateUnsubscribed && e.state != StateError
}

func (m *Manager) markError(scope string, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.scopes[scope]
	if !ok || e.gen != gen || e.state == StateError {
		return false
	}
	e.state = StateError
	e.detach = nil
	return true
}

func (m *Manager) detachGen(scope string, gen uint64) {
	m.mu.Lock()
	e, ok := m.scopes[scope]
	var detach Unsubscribe
	if ok && e.gen == gen {
		detach = e.detach
		e.detach = nil
		e.state = StateUnsubscribed
		e.gen++
	}
	m.mu.Unlock()
	if detach != nil {
		detach()
	}
}
