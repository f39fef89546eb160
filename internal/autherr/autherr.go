// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package autherr maps auth provider failures to a stable, user-facing
// taxonomy. Raw transport errors never reach the UI layer; every sub-kind
// has one fixed message.
package autherr

import (
	"errors"
	"fmt"
	"net"

	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/errorutils"
)

// Kind is the auth failure sub-kind.
type Kind int

const (
	// KindUnknown is any failure not covered by a specific kind.
	KindUnknown Kind = iota
	// KindEmailInUse means the email address is already registered.
	KindEmailInUse
	// KindWeakCredential means the credential was rejected as too weak or
	// malformed.
	KindWeakCredential
	// KindThrottled means the provider rejected the request for quota.
	KindThrottled
	// KindNetwork means the provider could not be reached.
	KindNetwork
	// KindUnavailable means the provider is reachable but failing.
	KindUnavailable
)

// Error is an auth failure with a stable user-facing message.
type Error struct {
	// Kind is the failure sub-kind.
	Kind Kind

	err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("autherr: %s: %v", e.UserMessage(), e.err)
}

func (e *Error) Unwrap() error { return e.err }

// UserMessage returns the fixed message shown to the user for this kind.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindEmailInUse:
		return "That email address is already in use."
	case KindWeakCredential:
		return "That password is too weak. Pick a longer one."
	case KindThrottled:
		return "Too many attempts. Wait a moment and try again."
	case KindNetwork:
		return "Could not reach the chat service. Check your connection."
	case KindUnavailable:
		return "The chat service is temporarily unavailable. Try again shortly."
	default:
		return "Something went wrong signing you in. Try again."
	}
}

// Classify wraps an auth provider error with its sub-kind. Returns nil for
// a nil error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kindOf(err), err: err}
}

func kindOf(err error) Kind {
	switch {
	case auth.IsEmailAlreadyExists(err):
		return KindEmailInUse
	case errorutils.IsInvalidArgument(err):
		// The provider reports rejected passwords as invalid arguments.
		return KindWeakCredential
	case errorutils.IsResourceExhausted(err):
		return KindThrottled
	case errorutils.IsUnavailable(err), errorutils.IsInternal(err), errorutils.IsDeadlineExceeded(err):
		return KindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}
