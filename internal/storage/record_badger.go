// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// =============================================================================
// BADGER RECORD STORE
// =============================================================================

// recordPrefix namespaces record keys inside the badger keyspace.
const recordPrefix = "record:"

// BadgerRecords stores records in an embedded badger database.
type BadgerRecords struct {
	db *badger.DB
}

// OpenBadgerRecords opens (or creates) a badger database in dir. With
// inMemory set nothing touches disk.
func OpenBadgerRecords(dir string, inMemory bool, log zerolog.Logger) (*BadgerRecords, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Conversation history is a single small value; keep the footprint low.
	opts = opts.
		WithLogger(badgerLogger{log: log.With().Str("component", "badger").Logger()}).
		WithSyncWrites(true).
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(16 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerRecords{db: db}, nil
}

// Get reads a record.
func (b *BadgerRecords) Get(key string) (string, error) {
	var value string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	return value, err
}

// Set writes a record.
func (b *BadgerRecords) Set(key, value string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordPrefix+key), []byte(value))
	})
}

// Delete removes a record.
func (b *BadgerRecords) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(recordPrefix + key))
	})
}

// Close flushes and closes the database.
func (b *BadgerRecords) Close() error {
	return b.db.Close()
}

// =============================================================================
// LOGGER ADAPTER
// =============================================================================

// badgerLogger routes badger's printf-style logging into zerolog. Badger
// is chatty at info level, so info is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
