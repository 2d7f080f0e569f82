//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Command sentinel is the process entrypoint: a transparent stdio
// sidecar that launches an MCP server, forwards agent traffic
// unmodified, and records a verifiable audit trail on the side.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sentinel:", err)
		os.Exit(1)
	}
}
