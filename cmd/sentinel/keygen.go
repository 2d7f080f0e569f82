//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mcpsentinel/sentinel/audit"
)

func newKeygenCmd() *cobra.Command {
	var outDir string
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 signing keypair for audit checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := audit.GenerateSigningKeypair()
			if err != nil {
				return fmt.Errorf("sentinel keygen: %w", err)
			}
			privPath := filepath.Join(outDir, "signing_key.b64")
			pubPath := filepath.Join(outDir, "signing_pubkey.b64")
			if err := audit.WriteB64File(privPath, priv, force); err != nil {
				return fmt.Errorf("sentinel keygen: %w", err)
			}
			if err := audit.WriteB64File(pubPath, pub, force); err != nil {
				return fmt.Errorf("sentinel keygen: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory to write the keypair into")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing key files")
	return cmd
}

func newRecipientKeygenCmd() *cobra.Command {
	var outDir string
	var force bool

	cmd := &cobra.Command{
		Use:   "recipient-keygen",
		Short: "Generate an X25519 recipient keypair for audit payload encryption",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := audit.GenerateRecipientKeypair()
			if err != nil {
				return fmt.Errorf("sentinel recipient-keygen: %w", err)
			}
			privPath := filepath.Join(outDir, "recipient_key.b64")
			pubPath := filepath.Join(outDir, "recipient_pubkey.b64")
			if err := audit.WriteB64File(privPath, priv[:], force); err != nil {
				return fmt.Errorf("sentinel recipient-keygen: %w", err)
			}
			if err := audit.WriteB64File(pubPath, pub[:], force); err != nil {
				return fmt.Errorf("sentinel recipient-keygen: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory to write the keypair into")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing key files")
	return cmd
}
