//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpsentinel/sentinel/audit"
	"github.com/mcpsentinel/sentinel/verify"
)

func newVerifyCmd() *cobra.Command {
	var logPath, pubkeyPath, decryptPrivKeyPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an audit log's hash chain and checkpoint signatures offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(logPath)
			if err != nil {
				return fmt.Errorf("sentinel verify: %w", err)
			}
			defer f.Close()

			opts := verify.Options{}
			if pubkeyPath != "" {
				pub, err := audit.LoadVerifyKey(pubkeyPath)
				if err != nil {
					return fmt.Errorf("sentinel verify: %w", err)
				}
				opts.VerifyKey = pub
			}
			if decryptPrivKeyPath != "" {
				priv, err := audit.LoadRecipientPrivateKey(decryptPrivKeyPath)
				if err != nil {
					return fmt.Errorf("sentinel verify: %w", err)
				}
				opts.RecipientPrivKey = &priv
			}

			report := verify.File(f, opts)
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("sentinel verify: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if !report.OK() {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "Audit log file to verify (required)")
	cmd.Flags().StringVar(&pubkeyPath, "pubkey-b64-path", "", "Ed25519 signing public key (base-64)")
	cmd.Flags().StringVar(&decryptPrivKeyPath, "decrypt-recipient-privkey-b64-path", "", "X25519 recipient private key (base-64), to decrypt sealed payloads")
	cmd.MarkFlagRequired("log")
	return cmd
}
