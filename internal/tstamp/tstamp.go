// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package tstamp converts the timestamp representations delivered by
// backend transports into a single canonical in-memory shape. Firestore
// decodes timestamp fields to time.Time while the websocket bridge
// delivers JSON objects with seconds and nanoseconds; local state must
// never hold either transport-native form.
package tstamp

import "time"

// Timestamp is the canonical in-memory timestamp.
type Timestamp struct {
	// Seconds is the number of seconds since the Unix epoch.
	Seconds int64 `json:"seconds" firestore:"seconds"`

	// Nanoseconds is the sub-second offset within the second.
	Nanoseconds int32 `json:"nanoseconds" firestore:"nanoseconds"`
}

// FromTime converts a time.Time to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int32(t.Nanosecond())}
}

// Now returns the current wall-clock time as a Timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// Time converts the Timestamp back to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanoseconds)).UTC()
}

// Before reports whether t is strictly earlier than other.
func (t Timestamp) Before(other Timestamp) bool {
	if t.Seconds != other.Seconds {
		return t.Seconds < other.Seconds
	}
	return t.Nanoseconds < other.Nanoseconds
}

// recognizedKeys are the field names whose values carry timestamps in
// backend payloads. Only values under these keys are converted; everything
// else is recursed into unchanged.
var recognizedKeys = map[string]bool{
	"timestamp":            true,
	"lastMessageTimestamp": true,
	"createdAt":            true,
	"lastUpdated":          true,
	"editedAt":             true,
}

// Normalize converts v to a Timestamp if it is timestamp-shaped and
// returns it unchanged otherwise. Recognized shapes are time.Time,
// Timestamp itself, and generic maps carrying seconds and nanoseconds
// fields (the JSON encoding of a backend timestamp).
func Normalize(v any) any {
	if ts, ok := asTimestamp(v); ok {
		return ts
	}
	return v
}

// NormalizeDeep walks a decoded backend payload and normalizes every value
// found under a recognized key. The input is never mutated; a new
// structure is returned. Payloads are tree-shaped JSON so no cycle
// handling is needed.
func NormalizeDeep(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if recognizedKeys[k] {
				out[k] = Normalize(item)
				continue
			}
			out[k] = NormalizeDeep(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeDeep(item)
		}
		return out
	default:
		return v
	}
}

func asTimestamp(v any) (Timestamp, bool) {
	switch val := v.(type) {
	case Timestamp:
		return val, true
	case *Timestamp:
		if val != nil {
			return *val, true
		}
	case time.Time:
		return FromTime(val), true
	case *time.Time:
		if val != nil {
			return FromTime(*val), true
		}
	case map[string]any:
		secs, okSecs := asInt64(val["seconds"])
		nanos, okNanos := asInt64(val["nanoseconds"])
		if okSecs && okNanos {
			return Timestamp{Seconds: secs, Nanoseconds: int32(nanos)}, true
		}
	}
	return Timestamp{}, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
