// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultKeyAccount names the conversation key inside the secret store.
const DefaultKeyAccount = "conversation-encryption-key"

// =============================================================================
// KEY CUSTODIAN
// =============================================================================

// KeyCustodian obtains the installation's single conversation key, creating
// and storing it on first use. When the store refuses the write the key is
// kept for the rest of the process only.
type KeyCustodian struct {
	store   SecretStore
	account string
	log     zerolog.Logger

	mu         sync.Mutex
	sessionKey []byte
}

// NewKeyCustodian creates a custodian for the given store entry.
func NewKeyCustodian(store SecretStore, account string, log zerolog.Logger) *KeyCustodian {
	if account == "" {
		account = DefaultKeyAccount
	}
	return &KeyCustodian{
		store:   store,
		account: account,
		log:     log.With().Str("component", "key_custodian").Logger(),
	}
}

// ObtainKey returns a copy of the 32-byte conversation key. The only error
// is a failure of the system random source. Callers should ZeroBytes the
// result when done.
func (c *KeyCustodian) ObtainKey() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionKey != nil {
		return clone(c.sessionKey), nil
	}

	stored, err := c.store.Get(c.account)
	switch {
	case err == nil:
		key, decodeErr := DecodeKey(string(stored))
		ZeroBytes(stored)
		if decodeErr == nil {
			return key, nil
		}
		c.log.Warn().Err(decodeErr).Msg("stored key is malformed, replacing it")
	case errors.Is(err, ErrSecretNotFound):
		c.log.Info().Msg("no stored key, generating a new one")
	default:
		c.log.Warn().Err(fmt.Errorf("%w: %v", ErrKeyUnavailable, err)).
			Msg("secret store read failed, generating a new key")
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := c.store.Delete(c.account); err != nil {
		c.log.Debug().Err(err).Msg("clearing previous key entry failed")
	}

	encoded := []byte(EncodeKey(key))
	defer ZeroBytes(encoded)
	if err := c.store.Set(c.account, encoded); err != nil {
		c.log.Warn().Err(fmt.Errorf("%w: %v", ErrKeyUnavailable, err)).
			Msg("secret store write failed, key will not survive this session")
		c.sessionKey = clone(key)
	}
	return key, nil
}

// Persistent reports whether the key in use is held by the secret store.
// It is false only after a store write failed in this process.
func (c *KeyCustodian) Persistent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey == nil
}

// Forget zeroes any session-only key.
func (c *KeyCustodian) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	ZeroBytes(c.sessionKey)
	c.sessionKey = nil
}

// =============================================================================
// KEY ENCODING
// =============================================================================

// GenerateKey returns KeySize bytes from the system random source.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(randReader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// EncodeKey renders key material as standard base64 text.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey parses stored key text. Base64 is the current form; 64 hex
// characters are accepted for keys written by earlier builds.
func DecodeKey(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if len(text) == 2*KeySize {
		if key, err := hex.DecodeString(text); err == nil {
			return key, nil
		}
	}
	key, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64 or hex", ErrInvalidKey)
	}
	if len(key) != KeySize {
		ZeroBytes(key)
		return nil, fmt.Errorf("%w: decoded %d bytes", ErrInvalidKey, len(key))
	}
	return key, nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
