//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package proxy

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpsentinel/sentinel/event"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestPumpForwardsBytesUnmodified(t *testing.T) {
	src := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	dst := &bytes.Buffer{}
	obs := make(chan Observation, 8)

	p := &Pump{
		Name:         "agent->child",
		Direction:    event.Outbound,
		Src:          src,
		Dst:          dst,
		Observations: obs,
		Now:          fixedClock(time.Unix(0, 0)),
	}
	err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`+"\n", dst.String())
}

func TestPumpDeliversRawLineObservation(t *testing.T) {
	src := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	dst := &bytes.Buffer{}
	obs := make(chan Observation, 8)

	p := &Pump{Direction: event.Outbound, Src: src, Dst: dst, Observations: obs, Now: fixedClock(time.Unix(0, 0))}
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, obs, 1)
	o := <-obs
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, string(o.Raw))
	assert.Equal(t, event.Outbound, o.Direction)
	assert.False(t, o.Oversized)
}

func TestPumpMalformedLineStillForwardsAndObserves(t *testing.T) {
	src := strings.NewReader("not json\n")
	dst := &bytes.Buffer{}
	obs := make(chan Observation, 8)

	p := &Pump{Direction: event.Inbound, Src: src, Dst: dst, Observations: obs, Now: fixedClock(time.Unix(0, 0))}
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, "not json\n", dst.String())

	o := <-obs
	assert.Equal(t, "not json", string(o.Raw))
}

func TestPumpDropsOldestWhenObservationChannelFull(t *testing.T) {
	src := strings.NewReader("a\nb\nc\n")
	dst := &bytes.Buffer{}
	obs := make(chan Observation, 1)

	p := &Pump{Direction: event.Outbound, Src: src, Dst: dst, Observations: obs, Now: fixedClock(time.Unix(0, 0))}
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, uint64(2), p.Stats().ObservationsDropped())
	assert.Equal(t, uint64(3), p.Stats().LinesObserved())
	require.Len(t, obs, 1)
	last := <-obs
	assert.Equal(t, "c", string(last.Raw))
}

func TestPumpCancelUnblocksReadViaSrcCloser(t *testing.T) {
	r, w := io.Pipe()
	dst := &bytes.Buffer{}
	obs := make(chan Observation, 8)

	p := &Pump{Direction: event.Outbound, Src: r, Dst: dst, SrcCloser: r, Observations: obs, Now: fixedClock(time.Unix(0, 0))}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not unblock after cancel")
	}
	w.Close()
}
