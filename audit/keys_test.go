//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigningKeyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateSigningKeypair()
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "signing_key.b64")
	pubPath := filepath.Join(dir, "signing_pubkey.b64")
	require.NoError(t, WriteB64File(privPath, priv, false))
	require.NoError(t, WriteB64File(pubPath, pub, false))

	loadedPriv, err := LoadSigningKey(privPath)
	require.NoError(t, err)
	assert.Equal(t, priv, loadedPriv)

	loadedPub, err := LoadVerifyKey(pubPath)
	require.NoError(t, err)
	assert.Equal(t, pub, loadedPub)
}

func TestRecipientKeyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateRecipientKeypair()
	require.NoError(t, err)

	dir := t.TempDir()
	pubPath := filepath.Join(dir, "recipient_pubkey.b64")
	privPath := filepath.Join(dir, "recipient_key.b64")
	require.NoError(t, WriteB64File(pubPath, pub[:], false))
	require.NoError(t, WriteB64File(privPath, priv[:], false))

	loadedPub, err := LoadRecipientPublicKey(pubPath)
	require.NoError(t, err)
	assert.Equal(t, pub, loadedPub)

	loadedPriv, err := LoadRecipientPrivateKey(privPath)
	require.NoError(t, err)
	assert.Equal(t, priv, loadedPriv)
}

func TestWriteB64FileRefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.b64")
	require.NoError(t, WriteB64File(path, []byte("a"), false))
	err := WriteB64File(path, []byte("b"), false)
	assert.Error(t, err)
}

func TestWriteB64FileOverwritesWithForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.b64")
	require.NoError(t, WriteB64File(path, []byte("a"), false))
	require.NoError(t, WriteB64File(path, []byte("b"), true))
}

func TestPubkeyFingerprintIsStable(t *testing.T) {
	pub, _, err := GenerateSigningKeypair()
	require.NoError(t, err)
	a := PubkeyFingerprint(pub)
	b := PubkeyFingerprint(pub)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}
