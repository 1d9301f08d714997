// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	require.Len(t, key, KeySize)
	return key
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestEncryption_RoundTrip(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"empty list", []byte(`[]`)},
		{"conversation", []byte(`[{"id":"1","title":"t","messages":[{"role":"user","content":"hi"}]}]`)},
		{"unicode", []byte("héllo wörld 你好 🔐")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x00}},
		{"large", bytes.Repeat([]byte("A"), 1<<20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := Encrypt(key, tt.plaintext)
			require.NoError(t, err)

			got, err := Decrypt(key, text)
			require.NoError(t, err)
			require.Equal(t, tt.plaintext, got)
		})
	}
}

func TestEncryption_EnvelopeLayout(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("hello")

	envelope, err := Seal(key, plaintext)
	require.NoError(t, err)
	require.Len(t, envelope, NonceSize+len(plaintext)+TagSize)

	empty, err := Seal(key, nil)
	require.NoError(t, err)
	require.Len(t, empty, MinEnvelopeSize)
}

func TestEncryption_NonDeterministic(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same input")

	a, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	b, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "two encryptions must use distinct nonces")

	for _, text := range []string{a, b} {
		got, err := Decrypt(key, text)
		require.NoError(t, err)
		require.Equal(t, plaintext, got)
	}
}

// =============================================================================
// INTEGRITY
// =============================================================================

func TestEncryption_WrongKey(t *testing.T) {
	text, err := Encrypt(testKey(t), []byte("secret"))
	require.NoError(t, err)

	got, err := Decrypt(testKey(t), text)
	require.ErrorIs(t, err, ErrIntegrity)
	require.Nil(t, got)
}

func TestEncryption_BitFlips(t *testing.T) {
	key := testKey(t)
	envelope, err := Seal(key, []byte("tamper with me"))
	require.NoError(t, err)

	for i := range envelope {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), envelope...)
			tampered[i] ^= 1 << bit

			got, err := Open(key, tampered)
			require.ErrorIs(t, err, ErrIntegrity, "byte %d bit %d", i, bit)
			require.Nil(t, got)
		}
	}
}

func TestEncryption_MalformedInput(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"too short", base64.StdEncoding.EncodeToString(make([]byte, MinEnvelopeSize-1))},
		{"zeros", base64.StdEncoding.EncodeToString(make([]byte, 64))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decrypt(key, tt.text)
			require.ErrorIs(t, err, ErrIntegrity)
			require.Nil(t, got)
		})
	}
}

func TestEncryption_InvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 31, 33} {
		_, err := Seal(make([]byte, n), []byte("x"))
		require.ErrorIs(t, err, ErrInvalidKey, "len %d", n)

		_, err = Open(make([]byte, n), make([]byte, 64))
		require.ErrorIs(t, err, ErrInvalidKey, "len %d", n)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestEncryption_RandomSourceFailure(t *testing.T) {
	key := testKey(t)

	orig := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = orig })

	_, err := Seal(key, []byte("x"))
	require.Error(t, err)

	_, err = GenerateKey()
	require.Error(t, err)
}

// =============================================================================
// KEY DERIVATION
// =============================================================================

func TestEncryption_KeyDerivation(t *testing.T) {
	salt := []byte("test_salt_value!")

	key1 := DeriveKey("testpassword123", salt, 1000)
	key2 := DeriveKey("testpassword123", salt, 1000)
	require.Equal(t, key1, key2, "same password/salt should derive same key")
	require.Len(t, key1, KeySize)

	require.NotEqual(t, key1, DeriveKey("testpassword123", []byte("different_salt!!"), 1000))
	require.NotEqual(t, key1, DeriveKey("differentpassword", salt, 1000))
	require.NotEqual(t, key1, DeriveKey("testpassword123", salt, 1001))
}

func TestEncryption_GenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)
	require.Len(t, a, SaltSize)
	require.NotEqual(t, a, b)
}

func TestZeroBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	ZeroBytes(b)
	require.Equal(t, []byte{0, 0, 0}, b)
	ZeroBytes(nil)
}
