// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security owns the conversation encryption key and the
// authenticated cipher used to protect conversation history at rest.
//
// # Components
//
//   - SecretStore: capability interface over the platform credential store
//     (libsecret, macOS Keychain, DPAPI) with file and memory fallbacks
//   - KeyCustodian: obtains or creates the single 256-bit key
//   - Seal/Open, Encrypt/Decrypt: AES-256-GCM envelopes
//   - DeriveKey: PBKDF2-SHA-256 for passphrase-protected backups
//
// # Envelope Format
//
//	base64( nonce[12] || ciphertext || tag[16] )
//
// # Usage
//
//	store, _ := security.NewSecretStore(security.StoreOptions{Backend: "auto", Service: "secchat"})
//	custodian := security.NewKeyCustodian(store, "conversation-encryption-key", log)
//	key, _ := custodian.ObtainKey()
//	defer security.ZeroBytes(key)
//	text, _ := security.Encrypt(key, []byte(`[]`))
package security

import (
	"errors"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrKeyUnavailable classifies secret store read/write failures. The
	// custodian recovers from it with a session-only key.
	ErrKeyUnavailable = errors.New("encryption key unavailable")
	// ErrIntegrity indicates a malformed envelope or authentication tag mismatch.
	ErrIntegrity = errors.New("decryption failed: envelope malformed or authentication tag mismatch")
	// ErrInvalidKey indicates key material of the wrong length or encoding.
	ErrInvalidKey = errors.New("invalid key: must be 32 bytes")
	// ErrSecretNotFound is returned by SecretStore.Get when no secret is stored.
	ErrSecretNotFound = errors.New("secret not found")
)

// ZeroBytes overwrites sensitive byte slices.
// SECURITY: Zero key material to prevent memory disclosure via crash dumps.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
