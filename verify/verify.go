//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package verify implements an offline reader that walks a previously
// written audit log, re-computes the hash chain, checks checkpoint
// signatures, and decrypts envelope payloads when a recipient private
// key is supplied.
package verify

import (
	"bufio"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mcpsentinel/sentinel/audit"
)

// Failure describes one verification mismatch. Verification is
// all-or-nothing per log: the first failure stops the walk, so today
// exactly the first failure, if any, is recorded.
type Failure struct {
	RecordIndex int    `json:"record_index"`
	EventID     uint64 `json:"event_id,omitempty"`
	Reason      string `json:"reason"`
}

// Report summarizes a verification run.
type Report struct {
	RecordsChecked      int       `json:"records_checked"`
	FirstEventID        uint64    `json:"first_event_id"`
	LastEventID         uint64    `json:"last_event_id"`
	CheckpointsVerified int       `json:"checkpoints_verified"`
	Failures            []Failure `json:"failures"`
}

// OK reports whether the log verified cleanly.
func (r *Report) OK() bool { return len(r.Failures) == 0 }

// Options configures a verification run.
type Options struct {
	// VerifyKey checks checkpoint signatures. Required: without it no
	// checkpoint can be verified and every checkpoint record fails.
	VerifyKey ed25519.PublicKey

	// RecipientPrivKey, if non-nil, decrypts envelope payloads. Nil
	// means envelope payloads are left opaque and not decrypted (not a
	// failure by itself: a log without an encryption key configured is
	// still structurally verifiable).
	RecipientPrivKey *[32]byte

	// RunID scopes the AAD check on decrypted envelopes
	// ("event_id:run_id"). If empty, the run_id is taken from the
	// first record's event instead.
	RunID string
}

// File walks r line by line, applying opts: recompute each self_hash,
// require contiguous event_ids, verify checkpoint signatures, and
// optionally decrypt envelopes. It stops at the first failure
// (verification is all-or-nothing).
func File(r io.Reader, opts Options) *Report {
	report := &Report{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var prevHash [32]byte
	var prevEventID uint64
	haveFirst := false
	runID := opts.RunID

	for scanner.Scan() {
		idx := report.RecordsChecked
		line := scanner.Bytes()

		var rec audit.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			report.Failures = append(report.Failures, Failure{
				RecordIndex: idx,
				Reason:      fmt.Sprintf("malformed record: %v", err),
			})
			return finish(report)
		}
		report.RecordsChecked++

		if runID == "" {
			runID = rec.Event.RunID
		}

		if !haveFirst {
			report.FirstEventID = rec.Event.EventID
			haveFirst = true
		} else if rec.Event.EventID != prevEventID+1 {
			report.Failures = append(report.Failures, Failure{
				RecordIndex: idx,
				EventID:     rec.Event.EventID,
				Reason: fmt.Sprintf("event_id not contiguous: got %d, want %d",
					rec.Event.EventID, prevEventID+1),
			})
			return finish(report)
		}
		report.LastEventID = rec.Event.EventID
		prevEventID = rec.Event.EventID

		wantPrevHash := hex.EncodeToString(prevHash[:])
		if idx == 0 {
			wantPrevHash = audit.ZeroHash
		}
		if rec.PrevHash != wantPrevHash {
			report.Failures = append(report.Failures, Failure{
				RecordIndex: idx,
				EventID:     rec.Event.EventID,
				Reason:      "prev_hash does not match prior record's self_hash",
			})
			return finish(report)
		}

		eventBytes, err := canonicalizeEvent(rec.Event)
		if err != nil {
			report.Failures = append(report.Failures, Failure{
				RecordIndex: idx, EventID: rec.Event.EventID,
				Reason: fmt.Sprintf("canonicalize event: %v", err),
			})
			return finish(report)
		}
		h := sha256.New()
		h.Write(eventBytes)
		h.Write(prevHash[:])
		var selfHash [32]byte
		copy(selfHash[:], h.Sum(nil))
		if rec.SelfHash != hex.EncodeToString(selfHash[:]) {
			report.Failures = append(report.Failures, Failure{
				RecordIndex: idx, EventID: rec.Event.EventID,
				Reason: "self_hash mismatch: record has been tampered with",
			})
			return finish(report)
		}
		prevHash = selfHash

		if rec.Checkpoint != nil {
			if opts.VerifyKey == nil {
				report.Failures = append(report.Failures, Failure{
					RecordIndex: idx, EventID: rec.Event.EventID,
					Reason: "checkpoint present but no verify key configured",
				})
				return finish(report)
			}
			sig, err := hex.DecodeString(rec.Checkpoint.Sig)
			if err != nil {
				report.Failures = append(report.Failures, Failure{
					RecordIndex: idx, EventID: rec.Event.EventID,
					Reason: fmt.Sprintf("decode checkpoint signature: %v", err),
				})
				return finish(report)
			}
			if !ed25519.Verify(opts.VerifyKey, selfHash[:], sig) {
				report.Failures = append(report.Failures, Failure{
					RecordIndex: idx, EventID: rec.Event.EventID,
					Reason: "checkpoint signature does not verify",
				})
				return finish(report)
			}
			if rec.Checkpoint.CoversThroughEventID != rec.Event.EventID {
				report.Failures = append(report.Failures, Failure{
					RecordIndex: idx, EventID: rec.Event.EventID,
					Reason: "checkpoint covers_through_event_id does not match its own record",
				})
				return finish(report)
			}
			report.CheckpointsVerified++
		}

		if opts.RecipientPrivKey != nil {
			var env audit.Envelope
			if err := json.Unmarshal(rec.Event.Payload, &env); err == nil && env.Alg != "" {
				if _, err := audit.Open(*opts.RecipientPrivKey, rec.Event.EventID, runID, &env); err != nil {
					report.Failures = append(report.Failures, Failure{
						RecordIndex: idx, EventID: rec.Event.EventID,
						Reason: fmt.Sprintf("decrypt envelope: %v", err),
					})
					return finish(report)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		report.Failures = append(report.Failures, Failure{
			RecordIndex: report.RecordsChecked,
			Reason:      fmt.Sprintf("read error: %v", err),
		})
	}
	return finish(report)
}

func finish(r *Report) *Report { return r }

// canonicalizeEvent mirrors audit's unexported canonicalize for the
// event.Event type, round-tripping through map[string]any so key order
// is sorted exactly as the sink produced it.
func canonicalizeEvent(evt any) ([]byte, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
