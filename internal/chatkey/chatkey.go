// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package chatkey derives canonical identifiers for two-party conversations.
package chatkey

// Resolve returns the canonical conversation key for the two participant
// IDs. The key is independent of argument order so both participants
// always address the same conversation document. Returns false when either
// ID is unknown, in which case no conversation can be addressed.
func Resolve(idA, idB string) (string, bool) {
	if idA == "" || idB == "" {
		return "", false
	}
	if idA < idB {
		return idA + "-" + idB, true
	}
	return idB + "-" + idA, true
}
