//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpsentinel/sentinel/event"
)

func testEvent(id uint64) event.Event {
	return event.Event{
		EventID:     id,
		RunID:       "run-1",
		TimestampNS: int64(id),
		Direction:   event.Outbound,
		SessionID:   "session-1",
		TraceID:     "trace-1",
		SpanID:      "span-1",
		Payload:     json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`),
	}
}

func newTestSink(t *testing.T, cfg Config) *Sink {
	t.Helper()
	_, priv, err := GenerateSigningKeypair()
	require.NoError(t, err)
	cfg.SigningKey = priv
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "audit.log")
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestSinkWritesFirstRecordWithZeroPrevHash(t *testing.T) {
	s := newTestSink(t, Config{CheckpointEvery: 100})
	require.NoError(t, s.Deliver(testEvent(1)))
	require.NoError(t, s.Flush())

	records := readRecords(t, s.cfg.Path)
	require.Len(t, records, 1)
	assert.Equal(t, ZeroHash, records[0].PrevHash)
	assert.NotEqual(t, ZeroHash, records[0].SelfHash)
}

func TestSinkChainsHashesAcrossRecords(t *testing.T) {
	s := newTestSink(t, Config{CheckpointEvery: 100})
	require.NoError(t, s.Deliver(testEvent(1)))
	require.NoError(t, s.Deliver(testEvent(2)))
	require.NoError(t, s.Flush())

	records := readRecords(t, s.cfg.Path)
	require.Len(t, records, 2)
	assert.Equal(t, records[0].SelfHash, records[1].PrevHash)
}

func TestSinkCheckpointsByEventCount(t *testing.T) {
	s := newTestSink(t, Config{CheckpointEvery: 3, CheckpointInterval: time.Hour})
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, s.Deliver(testEvent(i)))
	}
	require.NoError(t, s.Flush())

	records := readRecords(t, s.cfg.Path)
	require.Len(t, records, 3)
	assert.Nil(t, records[0].Checkpoint)
	assert.Nil(t, records[1].Checkpoint)
	require.NotNil(t, records[2].Checkpoint)
	assert.Equal(t, uint64(3), records[2].Checkpoint.CoversThroughEventID)
}

func TestSinkCheckpointsByInterval(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	s := newTestSink(t, Config{CheckpointEvery: 1000, CheckpointInterval: time.Second, Now: clock})

	require.NoError(t, s.Deliver(testEvent(1)))
	now = now.Add(2 * time.Second)
	require.NoError(t, s.Deliver(testEvent(2)))
	require.NoError(t, s.Flush())

	records := readRecords(t, s.cfg.Path)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].Checkpoint)
	require.NotNil(t, records[1].Checkpoint)
}

func TestSinkCheckpointNextForcesCheckpointOnNextRecord(t *testing.T) {
	s := newTestSink(t, Config{CheckpointEvery: 1000, CheckpointInterval: time.Hour})
	require.NoError(t, s.Deliver(testEvent(1)))
	s.CheckpointNext()
	require.NoError(t, s.Deliver(testEvent(2)))
	require.NoError(t, s.Flush())

	records := readRecords(t, s.cfg.Path)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].Checkpoint)
	require.NotNil(t, records[1].Checkpoint)
	assert.Equal(t, uint64(2), records[1].Checkpoint.CoversThroughEventID)
}

func TestSinkEncryptsPayloadWhenRecipientConfigured(t *testing.T) {
	pub, _, err := GenerateRecipientKeypair()
	require.NoError(t, err)
	s := newTestSink(t, Config{CheckpointEvery: 100, RecipientPubKey: &pub})

	require.NoError(t, s.Deliver(testEvent(1)))
	require.NoError(t, s.Flush())

	records := readRecords(t, s.cfg.Path)
	require.Len(t, records, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(records[0].Event.Payload, &env))
	assert.Equal(t, Alg, env.Alg)
}

func TestSinkDegradesOnWriteFailureWithoutReturningError(t *testing.T) {
	s := newTestSink(t, Config{CheckpointEvery: 100})
	require.NoError(t, s.file.Close()) // force the next large write past the bufio buffer to fail

	big := testEvent(1)
	big.Payload = json.RawMessage(`"` + strings.Repeat("a", 8192) + `"`)

	err := s.Deliver(big)
	assert.NoError(t, err)
	assert.True(t, s.Stats().Degraded)
}

func TestSinkStatsTracksRecordsWritten(t *testing.T) {
	s := newTestSink(t, Config{CheckpointEvery: 100})
	require.NoError(t, s.Deliver(testEvent(1)))
	require.NoError(t, s.Deliver(testEvent(2)))
	assert.Equal(t, uint64(2), s.Stats().RecordsWritten)
}
