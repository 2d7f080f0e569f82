//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package audit implements the append-only, hash-chained, optionally
// signed-and-encrypted audit log.
package audit

import (
	"bufio"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mcpsentinel/sentinel/event"
	"github.com/mcpsentinel/sentinel/internal/logx"
)

// Config configures a [*Sink].
type Config struct {
	// Path is the audit log file, opened append-only.
	Path string

	// RunID is this process's run identifier, used as the AAD's run
	// component when encryption is enabled.
	RunID string

	// SigningKey signs checkpoint self-hashes. Required: checkpoints
	// cannot be produced without it.
	SigningKey ed25519.PrivateKey

	// RecipientPubKey, if non-nil, causes every record's payload to be
	// sealed under it. Nil means plaintext payloads.
	RecipientPubKey *[32]byte

	// CheckpointEvery is the event count between checkpoints.
	CheckpointEvery int

	// CheckpointInterval is the wall-clock interval between checkpoints.
	// A checkpoint fires on whichever of CheckpointEvery/CheckpointInterval
	// comes first.
	CheckpointInterval time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger receives sink lifecycle and degradation logs.
	Logger logx.SLogger
}

// Sink owns the append-only audit log: the file handle, the in-memory
// hash chain, and the signing key. Sink serializes calls internally via
// its own mutex, so concurrent callers are safe, but ordering across
// callers is whatever arrival order the mutex imposes; the supervisor
// feeds Sink from a single sequencer-owned goroutine to keep event_id
// order and append order identical.
type Sink struct {
	cfg Config

	mu                    sync.Mutex
	file                  *os.File
	writer                *bufio.Writer
	prevHash              [32]byte
	eventsSinceCheckpoint int
	lastCheckpoint        time.Time
	checkpointForced      bool

	recordsWritten uint64
	degraded       bool
	lastErr        error
}

var _ event.Sink = (*Sink)(nil)

// New opens (or creates) the audit log at cfg.Path in append mode and
// returns a ready [*Sink].
func New(cfg Config) (*Sink, error) {
	if cfg.SigningKey == nil {
		return nil, fmt.Errorf("audit: signing key is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logx.Default()
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 100
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 5 * time.Second
	}

	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", cfg.Path, err)
	}

	return &Sink{
		cfg:            cfg,
		file:           f,
		writer:         bufio.NewWriter(f),
		lastCheckpoint: cfg.Now(),
	}, nil
}

// Deliver appends evt to the log. It never returns an error to the
// caller: a write failure sets the degraded flag and is logged once,
// and the sink drops further records rather than propagating the
// failure toward the data path. The error return exists to satisfy
// [event.Sink]; callers that want to know whether the sink is healthy
// should poll [*Sink.Stats].
func (s *Sink) Deliver(evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return nil
	}

	if s.cfg.RecipientPubKey != nil && len(evt.Payload) > 0 {
		env, err := Seal(*s.cfg.RecipientPubKey, evt.EventID, s.cfg.RunID, evt.Payload)
		if err != nil {
			s.fail(err)
			return nil
		}
		raw, err := env.MarshalRaw()
		if err != nil {
			s.fail(err)
			return nil
		}
		evt.Payload = raw
	}

	rec, selfHash, err := s.buildRecord(evt)
	if err != nil {
		s.fail(err)
		return nil
	}

	s.eventsSinceCheckpoint++
	dueByCount := s.eventsSinceCheckpoint >= s.cfg.CheckpointEvery
	dueByTime := s.cfg.Now().Sub(s.lastCheckpoint) >= s.cfg.CheckpointInterval
	if dueByCount || dueByTime || s.checkpointForced {
		cp, err := s.buildCheckpoint(selfHash, evt.EventID)
		if err != nil {
			s.fail(err)
			return nil
		}
		rec.Checkpoint = cp
		s.eventsSinceCheckpoint = 0
		s.lastCheckpoint = s.cfg.Now()
		s.checkpointForced = false
	}

	line, err := canonicalize(rec)
	if err != nil {
		s.fail(err)
		return nil
	}
	if _, err := s.writer.Write(line); err != nil {
		s.fail(err)
		return nil
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		s.fail(err)
		return nil
	}

	s.prevHash = selfHash
	s.recordsWritten++
	if rec.Checkpoint != nil {
		s.cfg.Logger.Info("checkpointWritten",
			slog.Uint64("coversThroughEventID", rec.Checkpoint.CoversThroughEventID))
	}
	return nil
}

// buildRecord computes self_hash = SHA256(canonical(event) || prev_hash),
// returning the record (without any checkpoint attached yet) and the raw
// self-hash bytes for checkpoint signing.
func (s *Sink) buildRecord(evt event.Event) (*Record, [32]byte, error) {
	eventBytes, err := canonicalize(evt)
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("audit: canonicalize event: %w", err)
	}
	h := sha256.New()
	h.Write(eventBytes)
	h.Write(s.prevHash[:])
	var selfHash [32]byte
	copy(selfHash[:], h.Sum(nil))

	// s.prevHash's zero value is already 32 zero bytes, so the first
	// record's prev_hash naturally hex-encodes to ZeroHash without a
	// special case.
	return &Record{
		Event:    evt,
		PrevHash: hex.EncodeToString(s.prevHash[:]),
		SelfHash: hex.EncodeToString(selfHash[:]),
	}, selfHash, nil
}

func (s *Sink) buildCheckpoint(selfHash [32]byte, coversThrough uint64) (*Checkpoint, error) {
	sig := ed25519.Sign(s.cfg.SigningKey, selfHash[:])
	pub, ok := s.cfg.SigningKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("audit: signing key has no usable public half")
	}
	return &Checkpoint{
		Sig:                  hex.EncodeToString(sig),
		PubkeyFingerprint:    PubkeyFingerprint(pub),
		CoversThroughEventID: coversThrough,
	}, nil
}

func (s *Sink) fail(err error) {
	s.degraded = true
	s.lastErr = err
	s.cfg.Logger.Info("auditSinkDegraded", slog.Any("err", err))
	fmt.Fprintf(os.Stderr, "sentinel: audit sink degraded: %v\n", err)
}

// CheckpointNext forces the next delivered record to carry a checkpoint
// regardless of the count/interval cadence. The supervisor uses this so
// the last record of a run is always a signed checkpoint.
func (s *Sink) CheckpointNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpointForced = true
}

// Flush flushes buffered writes and fsyncs the underlying file.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("audit: flush: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Stats reports the sink's health for the supervisor's shutdown report.
type Stats struct {
	RecordsWritten uint64
	Degraded       bool
	LastError      error
}

// Stats returns a snapshot of the sink's counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{RecordsWritten: s.recordsWritten, Degraded: s.degraded, LastError: s.lastErr}
}
