//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/spanid.go
//

// Package trace assigns run/session/trace/span identifiers to observed
// JSON-RPC traffic and correlates requests with their responses.
package trace

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mcpsentinel/sentinel/internal/runtimex"
)

// NewID returns a UUIDv7 string: a unique, time-ordered identifier
// suitable for run_id, session_id, trace_id, and span_id.
//
// UUIDv7 is used (rather than v4) so that identifiers sort roughly by
// creation time, which helps when eyeballing a raw audit log.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewID() string {
	return runtimex.Must1(uuid.NewV7()).String()
}

// CanonicalID returns the canonical string form of a JSON-RPC id value,
// used to key the pending-request table.
//
// JSON-RPC permits id to be a number, string, or null. Keying on the raw
// compact JSON encoding (rather than, say, a Go interface{} type switch)
// avoids a collision between the number 1 and the string "1": their
// canonical JSON forms, "1" and "\"1\"", are distinct byte sequences.
//
// A nil or empty id (a notification) has no canonical form; callers must
// check for that case themselves before calling this function.
func CanonicalID(id json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, id); err != nil {
		// Not valid JSON: fall back to the raw bytes. Only reachable
		// with input the line parser already rejected.
		return string(id)
	}
	return buf.String()
}
