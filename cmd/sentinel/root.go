//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Transparent audited sidecar for an MCP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newKeygenCmd())
	root.AddCommand(newRecipientKeygenCmd())
	root.AddCommand(newVerifyCmd())
	return root
}
