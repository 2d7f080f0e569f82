//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package proxy

import "sync/atomic"

// Stats accumulates counters for one [*Pump], safe for concurrent reads
// while the pump runs.
type Stats struct {
	bytesForwarded      uint64
	linesObserved       uint64
	observationsDropped uint64
}

// BytesForwarded returns the total bytes copied from Src to Dst so far.
func (s *Stats) BytesForwarded() uint64 { return atomic.LoadUint64(&s.bytesForwarded) }

// LinesObserved returns the total complete lines delivered (dropped or not).
func (s *Stats) LinesObserved() uint64 { return atomic.LoadUint64(&s.linesObserved) }

// ObservationsDropped returns how many lines were evicted from a full
// observation channel instead of blocking the copy loop.
func (s *Stats) ObservationsDropped() uint64 { return atomic.LoadUint64(&s.observationsDropped) }
