//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package config

import (
	"time"

	"github.com/spf13/pflag"
)

func durationMS(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// RunFlags holds the flag-bound fields for `sentinel run`. BindRunFlags
// registers them on a *pflag.FlagSet; ToConfig copies the parsed values
// into a [*Config].
type RunFlags struct {
	AuditLog                      string
	SigningKeyB64Path             string
	EncryptRecipientPubKeyB64Path string
	WSBind                        string
	WSToken                       string
	CheckpointEvery               int
	CheckpointIntervalMS          int
	ShutdownDeadlineMS            int
	PanicLog                      string
}

// BindRunFlags registers the `sentinel run` flags on flags, defaulting to
// the values in [New].
func BindRunFlags(flags *pflag.FlagSet) *RunFlags {
	defaults := New()
	rf := &RunFlags{}
	flags.StringVar(&rf.AuditLog, "audit-log", "", "Enable the audit sink at this file path (append)")
	flags.StringVar(&rf.SigningKeyB64Path, "signing-key-b64-path", "", "Ed25519 signing private key (base-64 text); required for checkpoint signatures")
	flags.StringVar(&rf.EncryptRecipientPubKeyB64Path, "encrypt-recipient-pubkey-b64-path", "", "X25519 recipient public key; absent means payloads are not encrypted")
	flags.StringVar(&rf.WSBind, "ws-bind", defaults.WSBind, "Bind address for the HTTP/WebSocket server")
	flags.StringVar(&rf.WSToken, "ws-token", "", "WebSocket auth token; falls back to $"+WSTokenEnvVar)
	flags.IntVar(&rf.CheckpointEvery, "checkpoint-every", defaults.CheckpointEvery, "Events between checkpoints")
	flags.IntVar(&rf.CheckpointIntervalMS, "checkpoint-interval-ms", int(defaults.CheckpointInterval.Milliseconds()), "Milliseconds between checkpoints")
	flags.IntVar(&rf.ShutdownDeadlineMS, "shutdown-deadline-ms", int(defaults.ShutdownDeadline.Milliseconds()), "Milliseconds to wait for drain on shutdown")
	flags.StringVar(&rf.PanicLog, "panic-log", defaults.PanicLogPath, "Panic log file path")
	return rf
}

// ToConfig builds a [*Config] from parsed flag values.
func (rf *RunFlags) ToConfig() *Config {
	cfg := New()
	cfg.AuditLogPath = rf.AuditLog
	cfg.SigningKeyB64Path = rf.SigningKeyB64Path
	cfg.EncryptRecipientPubKeyB64Path = rf.EncryptRecipientPubKeyB64Path
	cfg.WSBind = rf.WSBind
	cfg.WSToken = rf.WSToken
	cfg.CheckpointEvery = rf.CheckpointEvery
	cfg.CheckpointInterval = durationMS(rf.CheckpointIntervalMS)
	cfg.ShutdownDeadline = durationMS(rf.ShutdownDeadlineMS)
	cfg.PanicLogPath = rf.PanicLog
	return cfg
}
