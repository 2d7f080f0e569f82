//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package supervisor

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mcpsentinel/sentinel/event"
	"github.com/mcpsentinel/sentinel/internal/logx"
	"github.com/mcpsentinel/sentinel/proxy"
	"github.com/mcpsentinel/sentinel/redact"
	"github.com/mcpsentinel/sentinel/trace"
	"github.com/mcpsentinel/sentinel/wire"
)

// pipeline is the single goroutine that owns the sequencer and the
// tracker (both are confined to one task and reached only by channel),
// turning [proxy.Observation] values from both pumps into redacted
// [event.Event]s and fanning them out to every configured sink.
type pipeline struct {
	runID     string
	sessionID string

	seq      *trace.Sequencer
	tracker  *trace.Tracker
	redactor *redact.Redactor
	sinks    []event.Sink

	logger logx.SLogger
	now    func() time.Time

	eventsDelivered uint64
}

func newPipeline(runID, sessionID string, now func() time.Time, logger logx.SLogger, sinks []event.Sink) *pipeline {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logx.Default()
	}
	tracker := trace.NewTracker()
	tracker.Now = now
	return &pipeline{
		runID:     runID,
		sessionID: sessionID,
		seq:       trace.NewSequencer(),
		tracker:   tracker,
		redactor:  redact.New(),
		sinks:     sinks,
		logger:    logger,
		now:       now,
	}
}

// run drains obs until it is closed, delivering one event per
// observation (plus any diagnostic events the tracker emits alongside
// it) to every sink. It returns once obs is closed and drained.
func (p *pipeline) run(obs <-chan proxy.Observation) {
	for o := range obs {
		p.handle(o)
	}
}

func (p *pipeline) handle(o proxy.Observation) {
	eventID := p.seq.Next()

	// The line parse happens here, on the observation goroutine, so
	// the pumps never spend data-path time on JSON.
	var msg *wire.Message
	if !o.Oversized {
		if m, err := wire.Decode(o.Raw); err == nil {
			msg = m
		}
	}

	var method *string
	var requestID json.RawMessage
	var outcome trace.Outcome

	switch {
	case msg == nil:
		// Unparseable or oversized line: still recorded, as a raw
		// event with no method.
		outcome = p.freshOutcome()
	case o.Direction == event.Outbound:
		method = msg.Method
		requestID = msg.ID
		if msg.Method != nil {
			outcome = p.tracker.ObserveOutbound(*msg.Method, msg.ID, eventID)
		} else {
			outcome = p.freshOutcome()
		}
	default: // Inbound
		requestID = msg.ID
		if msg.Method != nil {
			method = msg.Method
		}
		outcome = p.tracker.ObserveInbound(msg.ID)
	}

	payload := o.Raw
	if msg != nil {
		payload = msg.Payload
	}
	redacted := p.redactor.RedactJSON(payload, nil)

	evt := event.Event{
		EventID:      eventID,
		RunID:        p.runID,
		TimestampNS:  p.now().UnixNano(),
		Direction:    o.Direction,
		Method:       method,
		RequestID:    requestID,
		LatencyMS:    outcome.LatencyMS,
		SessionID:    p.sessionID,
		TraceID:      outcome.TraceID,
		SpanID:       outcome.SpanID,
		ParentSpanID: outcome.ParentSpanID,
		Orphan:       outcome.Orphan,
		Payload:      redacted,
	}
	p.deliver(evt)

	for _, diag := range outcome.Diagnostics {
		p.deliverDiagnostic(diag)
	}
}

// freshOutcome assigns a trace/span pair with no correlation, used for
// raw (unparsed) lines which carry no method/id to correlate on.
func (p *pipeline) freshOutcome() trace.Outcome {
	return trace.Outcome{TraceID: trace.NewID(), SpanID: trace.NewID()}
}

// deliverDiagnostic emits a synthetic Event for a tracker diagnostic
// (duplicate_request_id, orphan_request). Diagnostics flow through the
// same redact-then-fan-out path as ordinary events rather than being
// swallowed.
func (p *pipeline) deliverDiagnostic(d trace.Diagnostic) {
	detail, err := json.Marshal(d.Detail)
	if err != nil {
		detail = json.RawMessage(`{}`)
	}
	method := d.Method
	evt := event.Event{
		EventID:     p.seq.Next(),
		RunID:       p.runID,
		TimestampNS: p.now().UnixNano(),
		Direction:   event.Inbound,
		Method:      &method,
		SessionID:   p.sessionID,
		TraceID:     trace.NewID(),
		SpanID:      trace.NewID(),
		Orphan:      true,
		Payload:     p.redactor.RedactJSON(detail, nil),
	}
	p.deliver(evt)
}

// drainPending flushes the tracker's still-outstanding requests as
// orphan_request diagnostics, called by the supervisor during shutdown
// drain.
func (p *pipeline) drainPending() {
	for _, outcome := range p.tracker.Drain() {
		for _, diag := range outcome.Diagnostics {
			p.deliverDiagnostic(diag)
		}
	}
}

// emitShutdown delivers the run's final event. The supervisor arms the
// audit sink's forced checkpoint first, so the log always ends with a
// signed checkpoint covering everything written before it.
func (p *pipeline) emitShutdown() {
	method := "sentinel/shutdown"
	evt := event.Event{
		EventID:     p.seq.Next(),
		RunID:       p.runID,
		TimestampNS: p.now().UnixNano(),
		Direction:   event.Inbound,
		Method:      &method,
		SessionID:   p.sessionID,
		TraceID:     trace.NewID(),
		SpanID:      trace.NewID(),
		Payload:     json.RawMessage(`{}`),
	}
	p.deliver(evt)
}

func (p *pipeline) deliver(evt event.Event) {
	p.eventsDelivered++
	for _, sink := range p.sinks {
		if err := sink.Deliver(evt); err != nil {
			p.logger.Info("sinkDeliverFailed", slog.Any("err", err))
		}
	}
}
