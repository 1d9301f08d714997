// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package security

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// =============================================================================
// WINDOWS DPAPI SECRET STORE
// =============================================================================

// dpapiSecretStore seals secrets with the current user's DPAPI key and
// keeps the sealed blob in a FileSecretStore. The service name is mixed in
// as DPAPI entropy so another program running as the same user cannot
// unprotect the blob without knowing it.
type dpapiSecretStore struct {
	files   *FileSecretStore
	entropy []byte
}

func newPlatformStore(opts StoreOptions) (SecretStore, error) {
	return &dpapiSecretStore{
		files:   NewFileSecretStore(opts.Dir),
		entropy: []byte(opts.Service),
	}, nil
}

// Describe names the backend for status output.
func (d *dpapiSecretStore) Describe() string {
	return "dpapi (" + d.files.dir + ")"
}

func (d *dpapiSecretStore) Get(id string) ([]byte, error) {
	sealed, err := d.files.Get(id)
	if err != nil {
		return nil, err
	}
	secret, err := d.unprotect(sealed)
	if err != nil {
		return nil, fmt.Errorf("DPAPI decryption failed: %w", err)
	}
	return secret, nil
}

func (d *dpapiSecretStore) Set(id string, secret []byte) error {
	sealed, err := d.protect(secret)
	if err != nil {
		return fmt.Errorf("DPAPI encryption failed: %w", err)
	}
	return d.files.Set(id, sealed)
}

func (d *dpapiSecretStore) Delete(id string) error {
	return d.files.Delete(id)
}

// =============================================================================
// DPAPI CALLS
// =============================================================================

func blobOf(b []byte) *windows.DataBlob {
	if len(b) == 0 {
		return &windows.DataBlob{}
	}
	return &windows.DataBlob{Size: uint32(len(b)), Data: &b[0]}
}

// takeBlob copies a DPAPI-allocated output blob and frees it.
func takeBlob(out *windows.DataBlob) []byte {
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	buf := make([]byte, out.Size)
	copy(buf, unsafe.Slice(out.Data, out.Size))
	return buf
}

func (d *dpapiSecretStore) protect(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	var out windows.DataBlob
	err := windows.CryptProtectData(blobOf(data), nil, blobOf(d.entropy), 0, nil,
		windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, err
	}
	return takeBlob(&out), nil
}

func (d *dpapiSecretStore) unprotect(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	var out windows.DataBlob
	err := windows.CryptUnprotectData(blobOf(data), nil, blobOf(d.entropy), 0, nil,
		windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, err
	}
	return takeBlob(&out), nil
}
