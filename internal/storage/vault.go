// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/secchat/internal/model"
)

// Options configures OpenVault.
type Options struct {
	Records RecordStore
	Keys    KeySource
	// RecordKey names the encrypted record. Empty means DefaultRecordKey.
	RecordKey string
	// LegacyKey names the plaintext record. Empty means DefaultLegacyKey.
	LegacyKey string
	Log       zerolog.Logger
}

// =============================================================================
// VAULT
// =============================================================================

// Vault is the in-memory conversation list backed by the encrypted record.
// Every mutation is saved before it returns; a failed save leaves the list
// unchanged. Safe for concurrent use.
type Vault struct {
	records RecordStore
	codec   *Codec
	log     zerolog.Logger

	migration    MigrationResult
	migrationErr error

	mu    sync.Mutex
	convs []model.Conversation
}

// OpenVault runs the migration guard and loads the history. Migration and
// decryption failures are logged and the vault opens with whatever could
// be read; see Migration.
func OpenVault(opts Options) (*Vault, error) {
	if opts.Records == nil || opts.Keys == nil {
		return nil, errors.New("vault requires a record store and a key source")
	}

	codec := NewCodec(opts.Records, opts.Keys, opts.RecordKey, opts.Log)
	v := &Vault{
		records: opts.Records,
		codec:   codec,
		log:     opts.Log.With().Str("component", "vault").Logger(),
	}

	guard := NewMigrationGuard(opts.Records, codec, opts.LegacyKey, opts.Log)
	v.migration, v.migrationErr = guard.Run()
	if v.migrationErr != nil {
		v.log.Error().Err(v.migrationErr).Msg("migration did not complete, legacy record kept")
	} else if v.migration.Outcome != MigrationNone && v.migration.Outcome != MigrationSkipped {
		v.log.Info().Stringer("outcome", v.migration.Outcome).
			Int("conversations", v.migration.Conversations).Msg("migration finished")
	}

	v.convs = codec.Load()
	return v, nil
}

// Migration reports the outcome of the startup migration.
func (v *Vault) Migration() (MigrationResult, error) {
	return v.migration, v.migrationErr
}

// Codec returns the codec backing the vault.
func (v *Vault) Codec() *Codec {
	return v.codec
}

// Close closes the record store.
func (v *Vault) Close() error {
	return v.records.Close()
}

// =============================================================================
// READS
// =============================================================================

// Conversations returns a copy of all conversations, newest first.
func (v *Vault) Conversations() []model.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return model.CloneAll(v.convs)
}

// Get returns a copy of one conversation.
func (v *Vault) Get(id string) (model.Conversation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.indexOf(id)
	if i < 0 {
		return model.Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return v.convs[i].Clone(), nil
}

// Reload discards the in-memory list and reads the record again.
func (v *Vault) Reload() {
	convs := v.codec.Load()
	v.mu.Lock()
	v.convs = convs
	v.mu.Unlock()
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create starts a conversation from its first prompt and puts it first.
func (v *Vault) Create(firstMessage, modelName string) (model.Conversation, error) {
	conv := model.NewConversation(firstMessage, modelName)
	err := v.mutate(func(convs []model.Conversation) ([]model.Conversation, error) {
		return append([]model.Conversation{conv}, convs...), nil
	})
	if err != nil {
		return model.Conversation{}, err
	}
	return conv.Clone(), nil
}

// Append adds msg to conversation id and returns the updated conversation.
func (v *Vault) Append(id string, msg model.Message) (model.Conversation, error) {
	if err := msg.Validate(); err != nil {
		return model.Conversation{}, err
	}
	var updated model.Conversation
	err := v.mutate(func(convs []model.Conversation) ([]model.Conversation, error) {
		i := indexOf(convs, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
		}
		convs[i].AddMessage(msg.Clone())
		updated = convs[i].Clone()
		return convs, nil
	})
	return updated, err
}

// Rename sets the title of conversation id.
func (v *Vault) Rename(id, title string) error {
	return v.mutate(func(convs []model.Conversation) ([]model.Conversation, error) {
		i := indexOf(convs, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
		}
		convs[i].SetTitle(title)
		return convs, nil
	})
}

// Delete permanently removes conversation id.
func (v *Vault) Delete(id string) error {
	return v.mutate(func(convs []model.Conversation) ([]model.Conversation, error) {
		i := indexOf(convs, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
		}
		return append(convs[:i], convs[i+1:]...), nil
	})
}

// Replace overwrites the stored conversation with the same id.
func (v *Vault) Replace(conv model.Conversation) error {
	if err := conv.Validate(); err != nil {
		return err
	}
	return v.mutate(func(convs []model.Conversation) ([]model.Conversation, error) {
		i := indexOf(convs, conv.ID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conv.ID)
		}
		convs[i] = conv.Clone()
		return convs, nil
	})
}

// ReplaceAll swaps the whole history, as a restore does.
func (v *Vault) ReplaceAll(convs []model.Conversation) error {
	for i := range convs {
		if err := convs[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrSerialization, err)
		}
	}
	return v.mutate(func([]model.Conversation) ([]model.Conversation, error) {
		return model.CloneAll(convs), nil
	})
}

// Save writes the current list again, for example after a migration
// failure was resolved.
func (v *Vault) Save() error {
	return v.mutate(func(convs []model.Conversation) ([]model.Conversation, error) {
		return convs, nil
	})
}

// mutate applies fn to a copy of the list, saves the result and only then
// makes it current.
func (v *Vault) mutate(fn func([]model.Conversation) ([]model.Conversation, error)) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	next, err := fn(model.CloneAll(v.convs))
	if err != nil {
		return err
	}
	if err := v.codec.Save(next); err != nil {
		v.log.Error().Err(err).Msg("failed to save conversation history")
		return err
	}
	v.convs = next
	return nil
}

func (v *Vault) indexOf(id string) int {
	return indexOf(v.convs, id)
}

func indexOf(convs []model.Conversation, id string) int {
	for i := range convs {
		if convs[i].ID == id {
			return i
		}
	}
	return -1
}
