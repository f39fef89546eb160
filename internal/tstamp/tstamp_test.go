// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package tstamp

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeShapes(t *testing.T) {
	want := Timestamp{Seconds: 100, Nanoseconds: 5}

	tests := []struct {
		name string
		in   any
	}{
		{"timestamp", Timestamp{Seconds: 100, Nanoseconds: 5}},
		{"pointer", &Timestamp{Seconds: 100, Nanoseconds: 5}},
		{"time", time.Unix(100, 5)},
		{"json map", map[string]any{"seconds": float64(100), "nanoseconds": float64(5)}},
		{"int map", map[string]any{"seconds": int64(100), "nanoseconds": int64(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != want {
				t.Fatalf("Normalize(%v) = %v, want %v", tt.in, got, want)
			}
		})
	}
}

func TestNormalizePassthrough(t *testing.T) {
	for _, v := range []any{"hello", 42, map[string]any{"seconds": int64(1)}, nil} {
		got := Normalize(v)
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("Normalize(%v) = %v, want unchanged", v, got)
		}
	}
}

func TestNormalizeDeepNested(t *testing.T) {
	in := map[string]any{
		"id":   "u1-u2",
		"text": "hi",
		"timestamp": map[string]any{
			"seconds":     float64(100),
			"nanoseconds": float64(0),
		},
		"users": []any{
			map[string]any{
				"uid":       "u1",
				"createdAt": time.Unix(50, 0),
			},
		},
		"meta": map[string]any{
			"lastUpdated": map[string]any{"seconds": float64(7), "nanoseconds": float64(8)},
			"count":       float64(3),
		},
	}

	got, ok := NormalizeDeep(in).(map[string]any)
	if !ok {
		t.Fatal("NormalizeDeep did not return a map")
	}
	if got["timestamp"] != (Timestamp{Seconds: 100}) {
		t.Fatalf("timestamp = %v", got["timestamp"])
	}
	users := got["users"].([]any)
	if users[0].(map[string]any)["createdAt"] != (Timestamp{Seconds: 50}) {
		t.Fatalf("createdAt = %v", users[0].(map[string]any)["createdAt"])
	}
	meta := got["meta"].(map[string]any)
	if meta["lastUpdated"] != (Timestamp{Seconds: 7, Nanoseconds: 8}) {
		t.Fatalf("lastUpdated = %v", meta["lastUpdated"])
	}
	if meta["count"] != float64(3) {
		t.Fatalf("sibling field changed: %v", meta["count"])
	}
	if got["text"] != "hi" {
		t.Fatalf("sibling field changed: %v", got["text"])
	}
}

func TestNormalizeDeepDoesNotMutateInput(t *testing.T) {
	in := map[string]any{
		"timestamp": map[string]any{"seconds": float64(1), "nanoseconds": float64(2)},
	}
	NormalizeDeep(in)
	if _, ok := in["timestamp"].(map[string]any); !ok {
		t.Fatal("input map was mutated")
	}
}

func TestBefore(t *testing.T) {
	a := Timestamp{Seconds: 10, Nanoseconds: 0}
	b := Timestamp{Seconds: 10, Nanoseconds: 1}
	c := Timestamp{Seconds: 11, Nanoseconds: 0}
	if !a.Before(b) || !b.Before(c) || c.Before(a) {
		t.Fatal("Before ordering wrong")
	}
	if a.Before(a) {
		t.Fatal("Before should be strict")
	}
}
