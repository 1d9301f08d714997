// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// NonceSize is the size of the AES-GCM nonce (12 bytes / 96 bits).
const NonceSize = 12

// TagSize is the size of the GCM authentication tag (16 bytes / 128 bits).
const TagSize = 16

// KeySize is the size of the AES-256 key (32 bytes / 256 bits).
const KeySize = 32

// MinEnvelopeSize is the length of an envelope carrying empty plaintext.
const MinEnvelopeSize = NonceSize + TagSize

// randReader is swapped in tests to simulate entropy failure.
var randReader io.Reader = rand.Reader

// =============================================================================
// AEAD
// =============================================================================

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under key and returns nonce || ciphertext || tag.
// A fresh random nonce is drawn for every call.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open verifies and decrypts an envelope produced by Seal. Any malformed
// or tampered input yields ErrIntegrity and no plaintext.
func Open(key, envelope []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(envelope) < MinEnvelopeSize {
		return nil, fmt.Errorf("%w: envelope is %d bytes, need at least %d",
			ErrIntegrity, len(envelope), MinEnvelopeSize)
	}

	nonce, sealed := envelope[:NonceSize], envelope[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Encrypt seals plaintext and returns the envelope as standard base64 text.
func Encrypt(key, plaintext []byte) (string, error) {
	envelope, err := Seal(key, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt decodes base64 envelope text and opens it.
func Decrypt(key []byte, text string) ([]byte, error) {
	envelope, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrIntegrity)
	}
	return Open(key, envelope)
}
