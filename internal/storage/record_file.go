// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/jeranaias/secchat/internal/util"
)

// =============================================================================
// FILE RECORD STORE
// =============================================================================

// FileRecords keeps every record in one JSON object file, the layout used
// by desktop settings stores. The file is rewritten atomically on each
// mutation and may hold unrelated keys, which are preserved.
type FileRecords struct {
	path string

	mu      sync.Mutex
	records map[string]json.RawMessage
}

// OpenFileRecords loads path, creating an empty store if it does not exist.
func OpenFileRecords(path string) (*FileRecords, error) {
	f := &FileRecords{path: path, records: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.records); err != nil {
		return nil, fmt.Errorf("failed to parse record file %s: %w", path, err)
	}
	return f, nil
}

// Get reads a record. Non-string JSON values are returned as raw JSON text,
// which is how a legacy plaintext conversation array is stored.
func (f *FileRecords) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.records[key]
	if !ok {
		return "", ErrRecordNotFound
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return string(raw), nil
}

// Set writes a record as a JSON string.
func (f *FileRecords) Set(key, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.records[key]
	f.records[key] = raw
	if err := f.flush(); err != nil {
		if had {
			f.records[key] = prev
		} else {
			delete(f.records, key)
		}
		return err
	}
	return nil
}

// Delete removes a record.
func (f *FileRecords) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.records[key]
	if !had {
		return nil
	}
	delete(f.records, key)
	if err := f.flush(); err != nil {
		f.records[key] = prev
		return err
	}
	return nil
}

// Close is a no-op; every mutation is already on disk.
func (f *FileRecords) Close() error {
	return nil
}

func (f *FileRecords) flush() error {
	data, err := json.MarshalIndent(f.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record file: %w", err)
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFileWithDir(f.path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	return nil
}
