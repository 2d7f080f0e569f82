//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpsentinel/sentinel/audit"
	"github.com/mcpsentinel/sentinel/config"
	"github.com/mcpsentinel/sentinel/internal/logx"
	"github.com/mcpsentinel/sentinel/supervisor"
	"github.com/mcpsentinel/sentinel/trace"
	"github.com/mcpsentinel/sentinel/wsfanout"
)

func newRunCmd() *cobra.Command {
	var runFlags *config.RunFlags

	cmd := &cobra.Command{
		Use:   "run [flags...] -- <child-argv>",
		Short: "Launch an MCP server and transparently observe its traffic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash < 0 {
				return fmt.Errorf("sentinel run requires a child command after --")
			}
			childArgv := args[dash:]
			if len(childArgv) == 0 {
				return fmt.Errorf("sentinel run requires a child command after --")
			}
			return runRun(cmd, runFlags.ToConfig(), childArgv)
		},
	}
	cmd.Flags().SetInterspersed(false)
	runFlags = config.BindRunFlags(cmd.Flags())
	return cmd
}

// runRun wires a whole run together: load keys, open the audit sink,
// start the WebSocket fan-out, and hand everything to
// [supervisor.Supervisor].
func runRun(cmd *cobra.Command, cfg *config.Config, childArgv []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	runID := trace.NewID()

	sup := supervisor.Config{
		Argv:             childArgv,
		RunID:            runID,
		ShutdownDeadline: cfg.ShutdownDeadline,
		PanicLogPath:     cfg.PanicLogPath,
		ErrClassifier:    cfg.ErrClassifier,
		Logger:           logger,
		Now:              cfg.Now,
	}

	if cfg.AuditEnabled() {
		signingKey, err := audit.LoadSigningKey(cfg.SigningKeyB64Path)
		if err != nil {
			return fmt.Errorf("sentinel: %w", err)
		}
		auditCfg := audit.Config{
			Path:               cfg.AuditLogPath,
			RunID:              runID,
			SigningKey:         signingKey,
			CheckpointEvery:    cfg.CheckpointEvery,
			CheckpointInterval: cfg.CheckpointInterval,
			Now:                cfg.Now,
			Logger:             logger,
		}
		if cfg.EncryptionEnabled() {
			pub, err := audit.LoadRecipientPublicKey(cfg.EncryptRecipientPubKeyB64Path)
			if err != nil {
				return fmt.Errorf("sentinel: %w", err)
			}
			auditCfg.RecipientPubKey = &pub
		}
		sink, err := audit.New(auditCfg)
		if err != nil {
			return fmt.Errorf("sentinel: %w", err)
		}
		defer sink.Close()
		sup.AuditSink = sink
	}

	cfg.ResolveWSToken()
	ws := wsfanout.New(wsfanout.Config{
		Bind:   cfg.WSBind,
		Token:  cfg.WSToken,
		Logger: logger,
	})
	sup.WS = ws

	s, err := supervisor.New(sup)
	if err != nil {
		return fmt.Errorf("sentinel: %w", err)
	}

	exitCode, runErr := s.Run(cmd.Context())
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "sentinel:", runErr)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

var _ logx.SLogger = (*slog.Logger)(nil)
