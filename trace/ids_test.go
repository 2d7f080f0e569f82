//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package trace

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewIDUniqueness(t *testing.T) {
	const count = 100
	seen := make(map[string]struct{}, count)

	for range count {
		id := NewID()
		_, duplicate := seen[id]
		require.False(t, duplicate, "duplicate id generated: %s", id)
		seen[id] = struct{}{}
	}
}

func TestCanonicalIDDistinguishesNumberFromString(t *testing.T) {
	number := CanonicalID(json.RawMessage(`1`))
	str := CanonicalID(json.RawMessage(`"1"`))
	assert.NotEqual(t, number, str)
}

func TestCanonicalIDIgnoresInsignificantWhitespace(t *testing.T) {
	a := CanonicalID(json.RawMessage(`  42 `))
	b := CanonicalID(json.RawMessage(`42`))
	assert.Equal(t, a, b)
}
