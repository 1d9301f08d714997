// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "errors"

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrRecordNotFound is returned by RecordStore.Get for a missing key.
	ErrRecordNotFound = errors.New("record not found")
	// ErrSerialization indicates the conversation list could not be
	// encoded or decoded.
	ErrSerialization = errors.New("conversation serialization failed")
	// ErrMigration indicates the legacy record could not be migrated. The
	// legacy record is left in place.
	ErrMigration = errors.New("legacy conversation migration failed")
	// ErrKeyNotPersistent indicates the conversation key would not survive
	// a restart, so migrated history could not be read back later.
	ErrKeyNotPersistent = errors.New("conversation key is not persisted")
	// ErrConversationNotFound is returned for an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
)
