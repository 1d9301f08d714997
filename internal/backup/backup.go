// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backup writes and reads portable encrypted archives of the
// conversation history.
//
// An archive is independent of the installation key: its key is derived
// from a passphrase with PBKDF2-SHA-256 and the history is sealed with the
// same AES-256-GCM envelope the vault uses.
//
//	{"version":1,"kdf":"pbkdf2-sha256","iterations":600000,
//	 "salt":"<base64>","data":"<base64 envelope>"}
//
// A wrong passphrase and a tampered archive both fail with
// security.ErrIntegrity.
package backup

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jeranaias/secchat/internal/model"
	"github.com/jeranaias/secchat/internal/security"
	"github.com/jeranaias/secchat/internal/storage"
	"github.com/jeranaias/secchat/internal/util"
)

// Format constants.
const (
	Version = 1
	KDF     = "pbkdf2-sha256"

	// MaxIterations bounds the work a crafted archive can demand.
	MaxIterations = 50_000_000
)

var (
	// ErrEmptyPassphrase is returned when no passphrase was given.
	ErrEmptyPassphrase = errors.New("passphrase is empty")

	// ErrFormat is returned for archives that are not valid version 1
	// backups.
	ErrFormat = errors.New("not a secchat backup")
)

// Archive is the on-disk backup document.
type Archive struct {
	Version    int       `json:"version"`
	KDF        string    `json:"kdf"`
	Iterations int       `json:"iterations"`
	Salt       string    `json:"salt"`
	Created    time.Time `json:"created,omitzero"`
	Data       string    `json:"data"`
}

// Options tunes Seal. The zero value uses security.PBKDF2Iterations.
type Options struct {
	Iterations int
	Now        func() time.Time
}

// Seal encrypts convs under a key derived from passphrase.
func Seal(convs []model.Conversation, passphrase string, opts Options) (*Archive, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = security.PBKDF2Iterations
	}

	plaintext, err := storage.Marshal(convs)
	if err != nil {
		return nil, err
	}
	defer security.ZeroBytes(plaintext)

	salt, err := security.GenerateSalt()
	if err != nil {
		return nil, err
	}
	key := security.DeriveKey(passphrase, salt, iterations)
	defer security.ZeroBytes(key)

	data, err := security.Encrypt(key, plaintext)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	return &Archive{
		Version:    Version,
		KDF:        KDF,
		Iterations: iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Created:    now().UTC(),
		Data:       data,
	}, nil
}

// Open decrypts an archive and returns the validated conversation list.
func Open(a *Archive, passphrase string) ([]model.Conversation, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if a.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, a.Version)
	}
	if a.KDF != KDF {
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrFormat, a.KDF)
	}
	if a.Iterations <= 0 || a.Iterations > MaxIterations {
		return nil, fmt.Errorf("%w: iteration count %d out of range", ErrFormat, a.Iterations)
	}
	salt, err := base64.StdEncoding.DecodeString(a.Salt)
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("%w: bad salt", ErrFormat)
	}

	key := security.DeriveKey(passphrase, salt, a.Iterations)
	defer security.ZeroBytes(key)

	plaintext, err := security.Decrypt(key, a.Data)
	if err != nil {
		return nil, err
	}
	defer security.ZeroBytes(plaintext)

	return storage.Unmarshal(plaintext)
}

// Write encodes an archive as indented JSON.
func Write(w io.Writer, a *Archive) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// Read decodes an archive.
func Read(r io.Reader) (*Archive, error) {
	var a Archive
	dec := json.NewDecoder(io.LimitReader(r, 1<<30))
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return &a, nil
}

// =============================================================================
// VAULT INTEGRATION
// =============================================================================

// ExportFile writes the vault's history to path as an archive (0600).
// It returns the number of conversations written.
func ExportFile(v *storage.Vault, path, passphrase string, opts Options) (int, error) {
	convs := v.Conversations()
	a, err := Seal(convs, passphrase, opts)
	if err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := util.AtomicWriteFileWithDir(path, append(data, '\n'), 0600, 0700); err != nil {
		return 0, fmt.Errorf("write backup: %w", err)
	}
	return len(convs), nil
}

// RestoreFile replaces the vault's history with the archive at path. The
// vault is untouched unless the archive decrypts and validates.
func RestoreFile(v *storage.Vault, path, passphrase string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	a, err := Read(f)
	if err != nil {
		return 0, err
	}
	convs, err := Open(a, passphrase)
	if err != nil {
		return 0, err
	}
	if err := v.ReplaceAll(convs); err != nil {
		return 0, err
	}
	return len(convs), nil
}
