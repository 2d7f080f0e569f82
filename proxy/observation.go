//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package proxy implements the two concurrent stdio pumps: byte-for-byte
// forwarding between the agent and the child MCP server, tee'd into a
// non-blocking observation channel so parsing, correlation, and audit
// never add latency to the data path.
package proxy

import (
	"time"

	"github.com/mcpsentinel/sentinel/event"
)

// Observation is one complete line seen crossing a pump, offered to the
// observation channel. It is a raw signal: parsing, correlation,
// sequencing, and redaction all happen downstream, never on this path.
type Observation struct {
	// Direction is Outbound for agent->child, Inbound for child->agent,
	// matching event.Direction's naming.
	Direction event.Direction

	// Raw is the complete line, exactly as it crossed the pump.
	Raw []byte

	// Oversized is true when Raw was truncated at MaxLineBytes.
	Oversized bool

	// At is when the line was observed (proxy.Pump's injected clock).
	At time.Time
}
