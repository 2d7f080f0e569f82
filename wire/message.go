//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package wire attempts to decode one complete line as a JSON-RPC 2.0
// message. Splitting the byte stream into lines is done by the proxy
// package's line tee, not here.
package wire

import "encoding/json"

// DefaultMaxLineBytes bounds the length of a single observed line
// (4 MiB). Longer lines are cut and fail the parse; the raw bytes are
// still forwarded untouched.
const DefaultMaxLineBytes = 4 << 20

// Message is a decoded JSON-RPC 2.0 envelope. Only the fields Sentinel
// needs for correlation and redaction are modeled; unknown fields in the
// source JSON are preserved in Payload for forwarding to the audit sink
// and dashboard (after redaction).
type Message struct {
	// ID is the raw JSON-RPC id, nil for a notification.
	ID json.RawMessage

	// Method is set for requests and notifications, nil for responses.
	Method *string

	// IsResponse is true when the message carries a "result" or "error"
	// member instead of a "method" (a response to a prior request).
	IsResponse bool

	// Payload is the full decoded message, suitable for redaction.
	Payload json.RawMessage
}

// wireEnvelope is the on-wire shape used only to detect whether a
// message is a request/notification (has "method") or a response (has
// "result"/"error"), and to extract "id".
type wireEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Method *string         `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// Decode attempts to parse raw as a JSON-RPC message. It returns
// (nil, err) if raw does not parse as JSON or its root is not an
// object; callers forward such lines without interpreting them.
func Decode(raw []byte) (*Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if !isObjectRoot(raw) {
		return nil, errNotObjectRoot
	}
	return &Message{
		ID:         env.ID,
		Method:     env.Method,
		IsResponse: env.Method == nil && (len(env.Result) > 0 || len(env.Error) > 0),
		Payload:    json.RawMessage(raw),
	}, nil
}

func isObjectRoot(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
