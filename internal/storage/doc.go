// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides encrypted conversation persistence.
//
// The whole conversation list is serialized to JSON, sealed with the
// installation key and written as one text value into a RecordStore.
// Histories written before encryption existed are migrated once, when the
// Vault is opened.
//
// # Key Types
//
//   - RecordStore: key/value slot store (badger, sqlite or a JSON file)
//   - Codec: encrypts and decrypts the conversation list record
//   - MigrationGuard: moves a legacy plaintext record to encrypted form
//   - Vault: the service object the rest of the application uses
//
// # Usage
//
//	records, _ := storage.OpenRecordStore(storage.RecordOptions{Backend: "badger", Path: dir})
//	vault, _ := storage.OpenVault(storage.Options{Records: records, Keys: custodian, Log: log})
//	conv, _ := vault.Create("hello", "qwen2.5:7b")
//
// # Storage Location
//
// Records live under ~/.secchat/ by default: records/ for badger,
// records.db for sqlite and records.json for the file backend.
package storage
