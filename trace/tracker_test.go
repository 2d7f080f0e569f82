//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package trace

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerNormalCallRoundTrip(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := NewTracker()
	tr.Now = func() time.Time { return now }

	out := tr.ObserveOutbound("tools/list", json.RawMessage(`1`), 1)
	require.Empty(t, out.Diagnostics)
	require.NotEmpty(t, out.TraceID)
	require.NotEmpty(t, out.SpanID)

	now = now.Add(25 * time.Millisecond)
	in := tr.ObserveInbound(json.RawMessage(`1`))

	assert.Equal(t, out.TraceID, in.TraceID)
	assert.Equal(t, out.SpanID, in.ParentSpanID)
	require.NotNil(t, in.LatencyMS)
	assert.GreaterOrEqual(t, *in.LatencyMS, uint32(20))
	assert.False(t, in.Orphan)
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerNotificationGetsFreshTraceNoEntry(t *testing.T) {
	tr := NewTracker()
	out := tr.ObserveOutbound("notifications/progress", nil, 1)
	assert.NotEmpty(t, out.TraceID)
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerInboundNotificationGetsFreshTraceNoParent(t *testing.T) {
	tr := NewTracker()
	in := tr.ObserveInbound(nil)
	assert.NotEmpty(t, in.TraceID)
	assert.Empty(t, in.ParentSpanID)
}

func TestTrackerInboundMissWithoutEntryIsOrphan(t *testing.T) {
	tr := NewTracker()
	in := tr.ObserveInbound(json.RawMessage(`99`))
	assert.True(t, in.Orphan)
	assert.Empty(t, in.ParentSpanID)
}

func TestTrackerDuplicateRequestIDOverwritesAndDiagnoses(t *testing.T) {
	tr := NewTracker()
	first := tr.ObserveOutbound("tools/call", json.RawMessage(`5`), 1)
	second := tr.ObserveOutbound("tools/call", json.RawMessage(`5`), 2)

	require.Len(t, second.Diagnostics, 1)
	assert.Equal(t, MethodDuplicateRequestID, second.Diagnostics[0].Method)
	assert.NotEqual(t, first.TraceID, second.TraceID)
	assert.Equal(t, 1, tr.Len())

	in := tr.ObserveInbound(json.RawMessage(`5`))
	assert.Equal(t, second.TraceID, in.TraceID, "response must correlate to the surviving (second) request")
}

func TestTrackerNumberAndStringIDsDoNotCollide(t *testing.T) {
	tr := NewTracker()
	tr.ObserveOutbound("a", json.RawMessage(`1`), 1)
	tr.ObserveOutbound("b", json.RawMessage(`"1"`), 2)
	assert.Equal(t, 2, tr.Len())
}

func TestTrackerOverflowEvictsOldestAsOrphan(t *testing.T) {
	tr := NewTracker()
	tr.MaxPending = 2

	tr.ObserveOutbound("a", json.RawMessage(`1`), 1)
	tr.ObserveOutbound("b", json.RawMessage(`2`), 2)
	out := tr.ObserveOutbound("c", json.RawMessage(`3`), 3)

	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, MethodOrphanRequest, out.Diagnostics[0].Method)
	assert.Equal(t, 2, tr.Len())

	// The evicted entry (id 1) is gone: its response is now an orphan.
	in := tr.ObserveInbound(json.RawMessage(`1`))
	assert.True(t, in.Orphan)
}

func TestTrackerDrainEmitsOrphanForEachOutstandingEntry(t *testing.T) {
	tr := NewTracker()
	tr.ObserveOutbound("a", json.RawMessage(`1`), 1)
	tr.ObserveOutbound("b", json.RawMessage(`2`), 2)

	drained := tr.Drain()
	require.Len(t, drained, 2)
	for _, o := range drained {
		assert.True(t, o.Orphan)
		require.Len(t, o.Diagnostics, 1)
		assert.Equal(t, MethodOrphanRequest, o.Diagnostics[0].Method)
	}
	assert.Equal(t, 0, tr.Len())
}
