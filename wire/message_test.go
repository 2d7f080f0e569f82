//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Method)
	assert.Equal(t, "tools/call", *msg.Method)
	assert.False(t, msg.IsResponse)
	assert.Equal(t, "1", string(msg.ID))
}

func TestDecodeNotificationHasNoID(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`))
	require.NoError(t, err)
	assert.Empty(t, msg.ID)
}

func TestDecodeResponse(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	require.NoError(t, err)
	assert.True(t, msg.IsResponse)
	assert.Nil(t, msg.Method)
}

func TestDecodeErrorResponse(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"not found"}}`))
	require.NoError(t, err)
	assert.True(t, msg.IsResponse)
}

func TestDecodeRejectsNonObjectRoot(t *testing.T) {
	_, err := Decode([]byte(`[1,2,3]`))
	assert.Error(t, err)

	_, err = Decode([]byte(`"just a string"`))
	assert.Error(t, err)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"id":`))
	assert.Error(t, err)
}

func TestDecodeStringID(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":"abc","method":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(msg.ID))
}
