//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package audit

import (
	"strings"

	"github.com/mcpsentinel/sentinel/event"
)

// ZeroHash is the hex encoding of 32 zero bytes, used as prev_hash for
// the first record in a run.
var ZeroHash = strings.Repeat("00", 32)

// Record is the persisted form of one event: the event itself, its
// position in the hash chain, and an optional checkpoint.
type Record struct {
	Event      event.Event `json:"event"`
	PrevHash   string      `json:"prev_hash"`
	SelfHash   string      `json:"self_hash"`
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`
}

// Checkpoint attests to the hash chain up to CoversThroughEventID.
//
// A checkpoint is attached to the record of the event that triggered it
// (the most recently written event) rather than written as a line of its
// own: every line in the log has a well-formed event field, and a
// verifier recognizes a checkpoint by the presence of this field rather
// than by a distinct, eventless record shape.
type Checkpoint struct {
	// Sig is the Ed25519 signature over the raw self-hash bytes of the
	// record this checkpoint is attached to, hex-encoded.
	Sig string `json:"sig"`

	// PubkeyFingerprint identifies the signing key without requiring
	// verifiers to have already loaded it.
	PubkeyFingerprint string `json:"pubkey_fingerprint"`

	// CoversThroughEventID is the last event_id this checkpoint attests to.
	CoversThroughEventID uint64 `json:"covers_through_event_id"`
}
