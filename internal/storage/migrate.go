// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// =============================================================================
// MIGRATION RESULT
// =============================================================================

// MigrationOutcome describes what a MigrationGuard run did.
type MigrationOutcome int

const (
	// MigrationNone: neither record exists.
	MigrationNone MigrationOutcome = iota
	// MigrationSkipped: encrypted storage is already active.
	MigrationSkipped
	// MigrationCleanedUp: a legacy record left by an interrupted run was removed.
	MigrationCleanedUp
	// MigrationEmptyLegacy: an empty legacy record was removed.
	MigrationEmptyLegacy
	// MigrationMigrated: legacy conversations were encrypted and the legacy record removed.
	MigrationMigrated
)

// String returns the outcome name.
func (o MigrationOutcome) String() string {
	switch o {
	case MigrationSkipped:
		return "skipped"
	case MigrationCleanedUp:
		return "cleaned-up"
	case MigrationEmptyLegacy:
		return "empty-legacy"
	case MigrationMigrated:
		return "migrated"
	default:
		return "none"
	}
}

// MigrationResult is returned by MigrationGuard.Run.
type MigrationResult struct {
	Outcome MigrationOutcome
	// Conversations is the number of conversations moved.
	Conversations int
}

// =============================================================================
// MIGRATION GUARD
// =============================================================================

// MigrationGuard moves a legacy plaintext conversation record into the
// encrypted record. The legacy record is deleted only after the encrypted
// record has been written and read back successfully.
type MigrationGuard struct {
	records   RecordStore
	codec     *Codec
	legacyKey string
	log       zerolog.Logger
}

// NewMigrationGuard creates a guard for the record named legacyKey.
func NewMigrationGuard(records RecordStore, codec *Codec, legacyKey string, log zerolog.Logger) *MigrationGuard {
	if legacyKey == "" {
		legacyKey = DefaultLegacyKey
	}
	return &MigrationGuard{
		records:   records,
		codec:     codec,
		legacyKey: legacyKey,
		log:       log.With().Str("component", "migration").Logger(),
	}
}

// Run performs the migration. It is idempotent: a second run finds the
// encrypted record and does nothing.
func (g *MigrationGuard) Run() (MigrationResult, error) {
	encrypted, hasEncrypted, err := g.read(g.codec.RecordKey())
	if err != nil {
		return MigrationResult{}, err
	}
	// A blank encrypted record loads as empty history, so it must not
	// count as the authoritative copy.
	if strings.TrimSpace(encrypted) == "" {
		hasEncrypted = false
	}
	legacy, hasLegacy, err := g.read(g.legacyKey)
	if err != nil {
		return MigrationResult{}, err
	}

	switch {
	case hasEncrypted && hasLegacy:
		return g.cleanUp(encrypted)
	case hasEncrypted:
		return MigrationResult{Outcome: MigrationSkipped}, nil
	case hasLegacy:
		return g.migrate(legacy)
	default:
		return MigrationResult{Outcome: MigrationNone}, nil
	}
}

// cleanUp removes a legacy record that survived an interrupted migration.
// It is kept while the encrypted record cannot be read, so nothing is lost
// if the key went missing.
func (g *MigrationGuard) cleanUp(encrypted string) (MigrationResult, error) {
	if _, err := g.codec.Decode(encrypted); err != nil {
		g.log.Warn().Err(err).Str("class", errorClass(err)).
			Msg("encrypted history unreadable, keeping legacy record")
		return MigrationResult{Outcome: MigrationSkipped}, nil
	}
	if err := g.records.Delete(g.legacyKey); err != nil {
		return MigrationResult{Outcome: MigrationSkipped},
			fmt.Errorf("%w: failed to remove leftover legacy record: %v", ErrMigration, err)
	}
	g.log.Info().Msg("removed legacy record left by an earlier migration")
	return MigrationResult{Outcome: MigrationCleanedUp}, nil
}

func (g *MigrationGuard) migrate(legacy string) (MigrationResult, error) {
	trimmed := strings.TrimSpace(legacy)
	if trimmed == "" || trimmed == "[]" {
		return g.dropEmpty()
	}

	convs, err := Unmarshal([]byte(trimmed))
	if err != nil {
		return MigrationResult{}, fmt.Errorf("%w: %w", ErrMigration, err)
	}
	if len(convs) == 0 {
		return g.dropEmpty()
	}

	if err := g.codec.Save(convs); err != nil {
		return MigrationResult{}, fmt.Errorf("%w: %w", ErrMigration, err)
	}

	if err := g.verify(len(convs)); err != nil {
		// Without this rollback the next run would see both records and
		// discard the legacy copy.
		g.rollback()
		return MigrationResult{}, fmt.Errorf("%w: %w", ErrMigration, err)
	}
	if !g.persistentKey() {
		// The key dies with this process; the encrypted copy would be
		// unreadable after a restart.
		g.rollback()
		return MigrationResult{}, fmt.Errorf("%w: %w", ErrMigration, ErrKeyNotPersistent)
	}

	result := MigrationResult{Outcome: MigrationMigrated, Conversations: len(convs)}
	if err := g.records.Delete(g.legacyKey); err != nil {
		return result, fmt.Errorf("%w: encrypted copy written but legacy record remains: %v", ErrMigration, err)
	}
	g.log.Info().Int("conversations", len(convs)).Msg("migrated legacy conversations to encrypted storage")
	return result, nil
}

// verify reads the encrypted record back and checks it decodes to want
// conversations.
func (g *MigrationGuard) verify(want int) error {
	text, err := g.records.Get(g.codec.RecordKey())
	if err != nil {
		return fmt.Errorf("read back failed: %w", err)
	}
	convs, err := g.codec.Decode(text)
	if err != nil {
		return fmt.Errorf("read back failed: %w", err)
	}
	if len(convs) != want {
		return fmt.Errorf("read back %d conversations, wrote %d", len(convs), want)
	}
	return nil
}

func (g *MigrationGuard) rollback() {
	if err := g.records.Delete(g.codec.RecordKey()); err != nil {
		g.log.Error().Err(err).Msg("failed to roll back encrypted record")
	}
}

// persistentKey reports whether the key source keeps its key across
// restarts. Sources that cannot tell are assumed persistent.
func (g *MigrationGuard) persistentKey() bool {
	p, ok := g.codec.keys.(interface{ Persistent() bool })
	return !ok || p.Persistent()
}

func (g *MigrationGuard) dropEmpty() (MigrationResult, error) {
	if err := g.records.Delete(g.legacyKey); err != nil {
		return MigrationResult{}, fmt.Errorf("%w: failed to remove empty legacy record: %v", ErrMigration, err)
	}
	g.log.Debug().Msg("removed empty legacy record")
	return MigrationResult{Outcome: MigrationEmptyLegacy}, nil
}

func (g *MigrationGuard) read(key string) (string, bool, error) {
	value, err := g.records.Get(key)
	if errors.Is(err, ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to read %s: %v", ErrMigration, key, err)
	}
	return value, true, nil
}
