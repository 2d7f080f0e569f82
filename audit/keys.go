//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package audit

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/curve25519"
)

// LoadSigningKey reads an Ed25519 private key from a base-64 text file.
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	raw, err := readB64File(path)
	if err != nil {
		return nil, fmt.Errorf("audit: load signing key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("audit: signing key at %s has %d bytes, want %d", path, len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}

// LoadVerifyKey reads an Ed25519 public key from a base-64 text file.
func LoadVerifyKey(path string) (ed25519.PublicKey, error) {
	raw, err := readB64File(path)
	if err != nil {
		return nil, fmt.Errorf("audit: load verify key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("audit: verify key at %s has %d bytes, want %d", path, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// LoadRecipientPublicKey reads an X25519 public key from a base-64 text
// file.
func LoadRecipientPublicKey(path string) ([32]byte, error) {
	var key [32]byte
	raw, err := readB64File(path)
	if err != nil {
		return key, fmt.Errorf("audit: load recipient public key: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("audit: recipient public key at %s has %d bytes, want 32", path, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// LoadRecipientPrivateKey reads an X25519 private key from a base-64
// text file. Used only by the verifier; the running sidecar never reads
// the recipient private key.
func LoadRecipientPrivateKey(path string) ([32]byte, error) {
	var key [32]byte
	raw, err := readB64File(path)
	if err != nil {
		return key, fmt.Errorf("audit: load recipient private key: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("audit: recipient private key at %s has %d bytes, want 32", path, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// PubkeyFingerprint derives a short, stable identifier for a public key
// (the first 16 hex characters of its SHA-256 digest) for
// [Checkpoint.PubkeyFingerprint].
func PubkeyFingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])[:16]
}

// GenerateSigningKeypair creates a fresh Ed25519 keypair.
func GenerateSigningKeypair() (pub ed25519.PublicKey, priv ed25519.PrivateKey, err error) {
	return ed25519.GenerateKey(rand.Reader)
}

// GenerateRecipientKeypair creates a fresh X25519 keypair.
func GenerateRecipientKeypair() (pub, priv [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return pub, priv, fmt.Errorf("audit: generate recipient key: %w", err)
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, priv, fmt.Errorf("audit: derive recipient public key: %w", err)
	}
	copy(pub[:], p)
	return pub, priv, nil
}

// WriteB64File writes raw as base-64 text to path with 0600 permissions,
// refusing to overwrite an existing file unless force is set.
func WriteB64File(path string, raw []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("audit: write %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(raw)); err != nil {
		return fmt.Errorf("audit: write %s: %w", path, err)
	}
	return nil
}

func readB64File(path string) ([]byte, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(trimNewline(string(text)))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
