// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"github.com/jeranaias/secchat/internal/util"
)

// =============================================================================
// SECRET STORE INTERFACE
// =============================================================================

// SecretStore is a named, single-value credential store. Implementations:
//   - Linux: libsecret via secret-tool
//   - macOS: Keychain via the security command
//   - Windows: DPAPI-protected file
//   - FileSecretStore: 0600 file fallback
//   - MemorySecretStore: process-local, for tests and ephemeral sessions
type SecretStore interface {
	// Get returns the stored secret or ErrSecretNotFound.
	Get(id string) ([]byte, error)
	// Set stores the secret, replacing any existing value.
	Set(id string, secret []byte) error
	// Delete removes the secret. Deleting a missing secret is not an error.
	Delete(id string) error
}

// Keystore backends accepted by NewSecretStore.
const (
	BackendAuto   = "auto"
	BackendOS     = "os"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// StoreOptions selects and configures a SecretStore backend.
type StoreOptions struct {
	// Backend is one of auto, os, file, memory. Empty means auto.
	Backend string
	// Service namespaces entries in the platform credential store.
	Service string
	// Dir holds key files for the file and Windows backends.
	Dir string
}

// NewSecretStore returns the backend named in opts. The auto backend uses
// the platform credential store when available and falls back to files.
func NewSecretStore(opts StoreOptions) (SecretStore, error) {
	if opts.Service == "" {
		opts.Service = "secchat"
	}
	if opts.Dir == "" {
		opts.Dir = defaultKeyDir()
	}

	switch opts.Backend {
	case "", BackendAuto:
		if store, err := newPlatformStore(opts); err == nil {
			return store, nil
		}
		return NewFileSecretStore(opts.Dir), nil
	case BackendOS:
		return newPlatformStore(opts)
	case BackendFile:
		return NewFileSecretStore(opts.Dir), nil
	case BackendMemory:
		return NewMemorySecretStore(), nil
	default:
		return nil, fmt.Errorf("unknown keystore backend %q", opts.Backend)
	}
}

// Describe returns a short human-readable name for store's backend.
func Describe(store SecretStore) string {
	if d, ok := store.(interface{ Describe() string }); ok {
		return d.Describe()
	}
	return fmt.Sprintf("%T", store)
}

// =============================================================================
// FILE-BASED SECRET STORE (FALLBACK)
// =============================================================================

// FileSecretStore keeps one file per id with owner-only permissions.
type FileSecretStore struct {
	dir string
}

// NewFileSecretStore creates a file-based secret store rooted at dir.
func NewFileSecretStore(dir string) *FileSecretStore {
	return &FileSecretStore{dir: dir}
}

// Get reads the secret for id.
func (f *FileSecretStore) Get(id string) ([]byte, error) {
	path := f.path(id)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat key file: %w", err)
	}

	// SECURITY: refuse key files readable by group or world
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("key file %s has insecure permissions (%o), fix with: chmod 600 %s",
			path, info.Mode().Perm(), path)
	}

	secret, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return secret, nil
}

// Set writes the secret atomically with 0600 permissions in a 0700 directory.
func (f *FileSecretStore) Set(id string, secret []byte) error {
	if err := util.AtomicWriteFileWithDir(f.path(id), secret, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Delete overwrites the key file with zeros before removing it.
func (f *FileSecretStore) Delete(id string) error {
	path := f.path(id)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat key file for deletion: %w", err)
	}

	if size := info.Size(); size > 0 {
		if fh, err := os.OpenFile(path, os.O_WRONLY, 0600); err == nil {
			_, _ = fh.Write(make([]byte, size))
			_ = fh.Sync()
			_ = fh.Close()
		}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Describe names the backend for status output.
func (f *FileSecretStore) Describe() string {
	return "file (" + f.dir + ")"
}

func (f *FileSecretStore) path(id string) string {
	return filepath.Join(f.dir, sanitizeID(id)+".key")
}

// =============================================================================
// MEMORY SECRET STORE
// =============================================================================

// MemorySecretStore is a process-local SecretStore. Nothing survives restart.
type MemorySecretStore struct {
	mu      sync.Mutex
	secrets map[string][]byte
}

// NewMemorySecretStore creates an empty in-memory store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[string][]byte)}
}

// Get returns a copy of the stored secret.
func (m *MemorySecretStore) Get(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secret, ok := m.secrets[id]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return append([]byte(nil), secret...), nil
}

// Set stores a copy of secret.
func (m *MemorySecretStore) Set(id string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[id] = append([]byte(nil), secret...)
	return nil
}

// Describe names the backend for status output.
func (m *MemorySecretStore) Describe() string {
	return "memory"
}

// Delete removes and zeroes the secret.
func (m *MemorySecretStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if secret, ok := m.secrets[id]; ok {
		ZeroBytes(secret)
		delete(m.secrets, id)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeID maps an id onto a safe file name.
func sanitizeID(id string) string {
	if id == "" {
		return "default"
	}
	return unsafeIDChars.ReplaceAllString(id, "_")
}

// defaultKeyDir returns ~/.secchat/keys.
func defaultKeyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".secchat", "keys")
	}
	return filepath.Join(home, ".secchat", "keys")
}
