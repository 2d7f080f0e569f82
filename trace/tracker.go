//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package trace

import (
	"container/list"
	"encoding/json"
	"time"
)

// DefaultMaxPending is the default bound on the pending-request table.
const DefaultMaxPending = 65536

// Diagnostic method names for synthetic events the tracker emits itself,
// rather than forwarding an observed JSON-RPC message.
const (
	MethodDuplicateRequestID = "sentinel/duplicate_request_id"
	MethodOrphanRequest      = "sentinel/orphan_request"
)

// pendingEntry is one outstanding outbound request awaiting its response.
type pendingEntry struct {
	id          string
	method      string
	eventID     uint64
	traceID     string
	spanID      string
	observedAt  time.Time
	listElement *list.Element
}

// Tracker owns the pending-request table and issues trace/span
// identifiers. It is not safe for concurrent use: all calls must come
// from one goroutine (the sequencer's consumer loop in practice).
type Tracker struct {
	// MaxPending bounds the pending-request table. Zero means
	// DefaultMaxPending.
	MaxPending int

	// Now returns the current time (injectable for testing).
	Now func() time.Time

	pending map[string]*pendingEntry
	order   *list.List // front = oldest
}

// NewTracker returns a new, empty [*Tracker].
func NewTracker() *Tracker {
	return &Tracker{
		Now:     time.Now,
		pending: make(map[string]*pendingEntry),
		order:   list.New(),
	}
}

// maxPending returns the effective bound.
func (t *Tracker) maxPending() int {
	if t.MaxPending > 0 {
		return t.MaxPending
	}
	return DefaultMaxPending
}

// Diagnostic names a synthetic event the tracker wants the caller to
// additionally emit, alongside the primary event for the message that
// triggered it.
type Diagnostic struct {
	Method string
	Detail map[string]any
}

// Outcome describes how an observed message should be annotated before
// becoming an [event.Event].
type Outcome struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	LatencyMS    *uint32
	Orphan       bool

	// Diagnostics lists synthetic events the caller should additionally
	// emit (duplicate_request_id, orphan_request) for this observation.
	Diagnostics []Diagnostic
}

// ObserveOutbound records an outbound (agent -> server) message and
// returns the trace/span assignment for it.
func (t *Tracker) ObserveOutbound(method string, id json.RawMessage, eventID uint64) Outcome {
	spanID := NewID()
	traceID := NewID()

	if len(id) == 0 || string(id) == "null" {
		// Notification: fresh trace/span, no pending-table entry.
		return Outcome{TraceID: traceID, SpanID: spanID}
	}

	key := CanonicalID(id)
	var diagnostics []Diagnostic
	if prev, exists := t.pending[key]; exists {
		t.removeLocked(prev)
		diagnostics = append(diagnostics, Diagnostic{
			Method: MethodDuplicateRequestID,
			Detail: map[string]any{"request_id": json.RawMessage(id), "method": method},
		})
	}

	entry := &pendingEntry{
		id:         key,
		method:     method,
		eventID:    eventID,
		traceID:    traceID,
		spanID:     spanID,
		observedAt: t.Now(),
	}
	if evicted := t.insertLocked(entry); evicted != nil {
		diagnostics = append(diagnostics, Diagnostic{
			Method: MethodOrphanRequest,
			Detail: map[string]any{"request_id": evicted.id, "method": evicted.method},
		})
	}

	return Outcome{TraceID: traceID, SpanID: spanID, Diagnostics: diagnostics}
}

// ObserveInbound records an inbound (server -> agent) message and
// returns the trace/span assignment for it, matching it against the
// pending table when it carries an id.
func (t *Tracker) ObserveInbound(id json.RawMessage) Outcome {
	spanID := NewID()

	if len(id) == 0 || string(id) == "null" {
		// Server-initiated notification: fresh trace_id, no parent.
		return Outcome{TraceID: NewID(), SpanID: spanID}
	}

	key := CanonicalID(id)
	entry, exists := t.pending[key]
	if !exists {
		return Outcome{TraceID: NewID(), SpanID: spanID, Orphan: true}
	}
	t.removeLocked(entry)

	elapsed := t.Now().Sub(entry.observedAt)
	latencyMS := uint32(elapsed / time.Millisecond)

	return Outcome{
		TraceID:      entry.traceID,
		SpanID:       spanID,
		ParentSpanID: entry.spanID,
		LatencyMS:    &latencyMS,
	}
}

// Drain removes and returns every still-pending entry, tagging each as
// an orphan_request diagnostic. Called by the supervisor during
// shutdown drain.
func (t *Tracker) Drain() []Outcome {
	var out []Outcome
	for e := t.order.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*pendingEntry)
		out = append(out, Outcome{
			TraceID: entry.traceID,
			SpanID:  NewID(),
			Orphan:  true,
			Diagnostics: []Diagnostic{{
				Method: MethodOrphanRequest,
				Detail: map[string]any{"request_id": entry.id, "method": entry.method},
			}},
		})
	}
	t.pending = make(map[string]*pendingEntry)
	t.order.Init()
	return out
}

// insertLocked inserts entry, evicting and returning the oldest
// outstanding entry if the table is at capacity. Returns nil if nothing
// was evicted.
func (t *Tracker) insertLocked(entry *pendingEntry) *pendingEntry {
	var evicted *pendingEntry
	if len(t.pending) >= t.maxPending() {
		if front := t.order.Front(); front != nil {
			evicted = front.Value.(*pendingEntry)
			t.removeLocked(evicted)
		}
	}
	entry.listElement = t.order.PushBack(entry)
	t.pending[entry.id] = entry
	return evicted
}

func (t *Tracker) removeLocked(entry *pendingEntry) {
	t.order.Remove(entry.listElement)
	delete(t.pending, entry.id)
}

// Len returns the number of outstanding pending requests.
func (t *Tracker) Len() int {
	return len(t.pending)
}
