//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineTeeSplitsCompleteLines(t *testing.T) {
	var got []string
	tee := newLineTee(1024, func(line []byte, oversized bool) {
		assert.False(t, oversized)
		got = append(got, string(line))
	})

	n, err := tee.Write([]byte("one\ntwo\nthr"))
	assert.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, []string{"one", "two"}, got)

	tee.Write([]byte("ee\n"))
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestLineTeeForcesCutWhenOversized(t *testing.T) {
	var lines []string
	var oversizedFlags []bool
	tee := newLineTee(4, func(line []byte, oversized bool) {
		lines = append(lines, string(line))
		oversizedFlags = append(oversizedFlags, oversized)
	})

	tee.Write([]byte("abcdefgh\n"))
	assert.Equal(t, []string{"abcd", "efgh"}, lines)
	assert.Equal(t, []bool{true, false}, oversizedFlags)
}

func TestLineTeeNeverErrors(t *testing.T) {
	tee := newLineTee(8, func([]byte, bool) {})
	for i := 0; i < 100; i++ {
		n, err := tee.Write([]byte("x"))
		assert.Equal(t, 1, n)
		assert.NoError(t, err)
	}
}
