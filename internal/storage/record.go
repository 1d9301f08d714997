// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
)

// =============================================================================
// RECORD STORE INTERFACE
// =============================================================================

// RecordStore is a key/value store of text records. Implementations are
// safe for concurrent use.
type RecordStore interface {
	// Get returns the value for key or ErrRecordNotFound.
	Get(key string) (string, error)
	// Set writes value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Close releases the underlying resources.
	Close() error
}

// Record backends accepted by OpenRecordStore.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// RecordOptions selects and configures a RecordStore backend.
type RecordOptions struct {
	// Backend is one of badger, sqlite, file. Empty means badger.
	Backend string
	// Path is the badger directory, sqlite database or JSON file.
	Path string
	// InMemory keeps badger data in memory only. Path is ignored.
	InMemory bool
	// Log receives backend diagnostics.
	Log zerolog.Logger
}

// OpenRecordStore opens the backend named in opts.
func OpenRecordStore(opts RecordOptions) (RecordStore, error) {
	switch opts.Backend {
	case "", BackendBadger:
		return OpenBadgerRecords(opts.Path, opts.InMemory, opts.Log)
	case BackendSQLite:
		if opts.InMemory {
			return OpenSQLiteRecords(":memory:")
		}
		return OpenSQLiteRecords(opts.Path)
	case BackendFile:
		return OpenFileRecords(opts.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// DefaultRecordPath returns the conventional location of backend's data
// inside dataDir.
func DefaultRecordPath(dataDir, backend string) string {
	switch backend {
	case BackendSQLite:
		return filepath.Join(dataDir, "records.db")
	case BackendFile:
		return filepath.Join(dataDir, "records.json")
	default:
		return filepath.Join(dataDir, "records")
	}
}
