//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package audit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// envelopeInfo is the HKDF info parameter, binding derived keys to this
// scheme so they can never be confused with a key derived elsewhere.
const envelopeInfo = "sentinel-envelope-v1"

// Alg identifies the encryption scheme used by [Envelope].
const Alg = "x25519+chacha20poly1305"

// Envelope is the wire form of an encrypted payload. The
// AEAD's associated data binds the ciphertext to its event_id and
// run_id, so a record's encrypted payload cannot be swapped onto another
// record in the same or a different run without detection.
type Envelope struct {
	Alg   string `json:"alg"`
	EPK   string `json:"epk"`
	Nonce string `json:"nonce"`
	CT    string `json:"ct"`
	AAD   string `json:"aad"`
}

// Seal encrypts plaintext for recipientPubKey, binding it to eventID and
// runID via the AEAD's associated data.
func Seal(recipientPubKey [32]byte, eventID uint64, runID string, plaintext []byte) (*Envelope, error) {
	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return nil, fmt.Errorf("audit: generate ephemeral key: %w", err)
	}
	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("audit: derive ephemeral public key: %w", err)
	}
	shared, err := curve25519.X25519(ephPriv[:], recipientPubKey[:])
	if err != nil {
		return nil, fmt.Errorf("audit: X25519 key agreement: %w", err)
	}

	key, err := deriveKey(shared)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("audit: construct AEAD: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("audit: generate nonce: %w", err)
	}

	aad := []byte(fmt.Sprintf("%d:%s", eventID, runID))
	ct := aead.Seal(nil, nonce, plaintext, aad)

	return &Envelope{
		Alg:   Alg,
		EPK:   base64.StdEncoding.EncodeToString(ephPub),
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		CT:    base64.StdEncoding.EncodeToString(ct),
		AAD:   base64.StdEncoding.EncodeToString(aad),
	}, nil
}

// Open decrypts an [Envelope] using recipientPrivKey, verifying it was
// bound to eventID and runID.
func Open(recipientPrivKey [32]byte, eventID uint64, runID string, env *Envelope) ([]byte, error) {
	if env.Alg != Alg {
		return nil, fmt.Errorf("audit: unsupported envelope alg %q", env.Alg)
	}
	epk, err := base64.StdEncoding.DecodeString(env.EPK)
	if err != nil {
		return nil, fmt.Errorf("audit: decode epk: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("audit: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.CT)
	if err != nil {
		return nil, fmt.Errorf("audit: decode ct: %w", err)
	}
	aad, err := base64.StdEncoding.DecodeString(env.AAD)
	if err != nil {
		return nil, fmt.Errorf("audit: decode aad: %w", err)
	}
	wantAAD := fmt.Sprintf("%d:%s", eventID, runID)
	if string(aad) != wantAAD {
		return nil, fmt.Errorf("audit: envelope aad %q does not match event_id:run_id %q", aad, wantAAD)
	}

	shared, err := curve25519.X25519(recipientPrivKey[:], epk)
	if err != nil {
		return nil, fmt.Errorf("audit: X25519 key agreement: %w", err)
	}
	key, err := deriveKey(shared)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("audit: construct AEAD: %w", err)
	}
	return aead.Open(nil, nonce, ct, aad)
}

func deriveKey(shared []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, shared, nil, []byte(envelopeInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("audit: derive key: %w", err)
	}
	return key, nil
}

// MarshalRaw renders the envelope as a json.RawMessage so it can stand
// in for event.Event's Payload field.
func (e *Envelope) MarshalRaw() (json.RawMessage, error) {
	return json.Marshal(e)
}
