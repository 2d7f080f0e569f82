//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package config holds sentinel's run-time configuration: a plain
// struct with a defaults constructor plus injectable dependencies
// (clock, error classifier) so tests never touch global state.
package config

import (
	"os"
	"time"

	"github.com/mcpsentinel/sentinel/internal/errclass"
)

// Defaults for the `sentinel run` flags.
const (
	DefaultWSBind             = "127.0.0.1:3000"
	DefaultCheckpointEvery    = 100
	DefaultCheckpointInterval = 5000 * time.Millisecond
	DefaultShutdownDeadline   = 10000 * time.Millisecond
	DefaultPanicLog           = "sentinel_panic.log"
)

// WSTokenEnvVar is consulted when --ws-token is unset.
const WSTokenEnvVar = "SENTINEL_WS_TOKEN"

// Config holds the `sentinel run` configuration, plus the dependencies
// that let tests substitute a fake clock or error classifier without
// touching global state.
type Config struct {
	// AuditLogPath enables the audit sink when non-empty.
	AuditLogPath string

	// SigningKeyB64Path loads the Ed25519 signing key. Required when
	// AuditLogPath is set.
	SigningKeyB64Path string

	// EncryptRecipientPubKeyB64Path loads the X25519 recipient public
	// key. Absent means audit payloads are stored in plaintext.
	EncryptRecipientPubKeyB64Path string

	// WSBind is the HTTP/WebSocket fan-out bind address.
	WSBind string

	// WSToken authenticates WebSocket clients. Resolved from
	// --ws-token, then $SENTINEL_WS_TOKEN, then left empty (in which
	// case the WebSocket server disables authentication and logs a
	// startup warning).
	WSToken string

	// CheckpointEvery is the number of events between audit checkpoints.
	CheckpointEvery int

	// CheckpointInterval is the time between audit checkpoints. The
	// sink checkpoints on whichever of CheckpointEvery/CheckpointInterval
	// comes first.
	CheckpointInterval time.Duration

	// ShutdownDeadline bounds how long the supervisor waits for pumps
	// and the sink to drain before forcing an exit.
	ShutdownDeadline time.Duration

	// PanicLogPath is where observation-side panics are recorded.
	PanicLogPath string

	// ErrClassifier classifies stdio pump errors for structured logging.
	//
	// Set by [New] to [errclass.Default].
	ErrClassifier errclass.Classifier

	// Now returns the current time. Set by [New] to time.Now; tests
	// substitute a deterministic clock.
	Now func() time.Time
}

// New returns a [*Config] with the documented flag defaults.
func New() *Config {
	return &Config{
		WSBind:             DefaultWSBind,
		CheckpointEvery:    DefaultCheckpointEvery,
		CheckpointInterval: DefaultCheckpointInterval,
		ShutdownDeadline:   DefaultShutdownDeadline,
		PanicLogPath:       DefaultPanicLog,
		ErrClassifier:      errclass.Default,
		Now:                time.Now,
	}
}

// ResolveWSToken fills WSToken from $SENTINEL_WS_TOKEN when the flag
// left it empty. It returns true if a token ended up set by either
// source.
func (c *Config) ResolveWSToken() bool {
	if c.WSToken == "" {
		c.WSToken = os.Getenv(WSTokenEnvVar)
	}
	return c.WSToken != ""
}

// AuditEnabled reports whether the audit sink should be constructed.
func (c *Config) AuditEnabled() bool {
	return c.AuditLogPath != ""
}

// EncryptionEnabled reports whether audit records should be sealed
// under the configured recipient's X25519 public key.
func (c *Config) EncryptionEnabled() bool {
	return c.EncryptRecipientPubKeyB64Path != ""
}
