//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	type s struct {
		Zeta  string `json:"zeta"`
		Alpha string `json:"alpha"`
	}
	got, err := canonicalize(s{Zeta: "z", Alpha: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","zeta":"z"}`, string(got))
}

func TestCanonicalizeIsDeterministic(t *testing.T) {
	type s struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	first, err := canonicalize(s{A: 1, B: 2})
	require.NoError(t, err)
	second, err := canonicalize(s{A: 1, B: 2})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
