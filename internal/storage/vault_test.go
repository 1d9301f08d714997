// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/secchat/internal/model"
)

func openTestVault(t *testing.T, records RecordStore, keys KeySource) *Vault {
	t.Helper()
	v, err := OpenVault(Options{Records: records, Keys: keys, Log: zerolog.Nop()})
	require.NoError(t, err)
	return v
}

func TestVault_RequiresDependencies(t *testing.T) {
	_, err := OpenVault(Options{})
	require.Error(t, err)
}

func TestVault_MigratesOnOpen(t *testing.T) {
	records := newMemRecords()
	records.values[DefaultLegacyKey] = legacySample

	v := openTestVault(t, records, newTestKeys())
	result, err := v.Migration()
	require.NoError(t, err)
	require.Equal(t, MigrationMigrated, result.Outcome)

	convs := v.Conversations()
	require.Len(t, convs, 1)
	require.Equal(t, "hello", convs[0].Messages[0].Content)
	require.False(t, records.has(DefaultLegacyKey))
}

func TestVault_MigrationFailureStillOpens(t *testing.T) {
	records := newMemRecords()
	records.values[DefaultLegacyKey] = "{broken"

	v := openTestVault(t, records, newTestKeys())
	_, err := v.Migration()
	require.ErrorIs(t, err, ErrMigration)
	require.Empty(t, v.Conversations())
	require.True(t, records.has(DefaultLegacyKey))
}

func TestVault_Lifecycle(t *testing.T) {
	records := newMemRecords()
	keys := newTestKeys()
	v := openTestVault(t, records, keys)

	first, err := v.Create("What is GCM?", "qwen2.5:7b")
	require.NoError(t, err)
	require.Equal(t, "What is GCM?", first.Title)

	second, err := v.Create("Second question", "")
	require.NoError(t, err)

	convs := v.Conversations()
	require.Len(t, convs, 2)
	require.Equal(t, second.ID, convs[0].ID, "newest first")

	updated, err := v.Append(first.ID, model.NewAssistantMessage("An AEAD mode."))
	require.NoError(t, err)
	require.Len(t, updated.Messages, 2)

	require.NoError(t, v.Rename(first.ID, "GCM"))
	got, err := v.Get(first.ID)
	require.NoError(t, err)
	require.Equal(t, "GCM", got.Title)

	require.NoError(t, v.Delete(second.ID))
	_, err = v.Get(second.ID)
	require.ErrorIs(t, err, ErrConversationNotFound)

	// Everything above was persisted.
	stored := requireEncryptedHolds(t, records, keys, 1)
	require.Equal(t, "GCM", stored[0].Title)
	require.Len(t, stored[0].Messages, 2)

	reopened := openTestVault(t, records, keys).Conversations()
	require.Len(t, reopened, 1)
	require.Equal(t, first.ID, reopened[0].ID)
	require.Equal(t, "An AEAD mode.", reopened[0].Messages[1].Content)
	require.True(t, first.CreatedAt.Equal(reopened[0].CreatedAt))
}

func TestVault_UnknownIDs(t *testing.T) {
	v := openTestVault(t, newMemRecords(), newTestKeys())

	_, err := v.Append("nope", model.NewUserMessage("x"))
	require.ErrorIs(t, err, ErrConversationNotFound)
	require.ErrorIs(t, v.Rename("nope", "t"), ErrConversationNotFound)
	require.ErrorIs(t, v.Delete("nope"), ErrConversationNotFound)
	require.ErrorIs(t, v.Replace(model.Conversation{ID: "nope"}), ErrConversationNotFound)
}

func TestVault_RejectsInvalidMessages(t *testing.T) {
	v := openTestVault(t, newMemRecords(), newTestKeys())
	conv, err := v.Create("hi", "")
	require.NoError(t, err)

	_, err = v.Append(conv.ID, model.Message{Role: "system", Content: "x"})
	require.Error(t, err)
}

func TestVault_SaveFailureLeavesStateUnchanged(t *testing.T) {
	records := newMemRecords()
	v := openTestVault(t, records, newTestKeys())
	conv, err := v.Create("keep me", "")
	require.NoError(t, err)

	records.failSet[DefaultRecordKey] = errDiskFull
	require.ErrorIs(t, v.Delete(conv.ID), errDiskFull)
	_, err = v.Create("lost", "")
	require.ErrorIs(t, err, errDiskFull)

	convs := v.Conversations()
	require.Len(t, convs, 1)
	require.Equal(t, conv.ID, convs[0].ID)
}

func TestVault_ReturnsCopies(t *testing.T) {
	v := openTestVault(t, newMemRecords(), newTestKeys())
	conv, err := v.Create("original", "")
	require.NoError(t, err)

	convs := v.Conversations()
	convs[0].Title = "mutated"
	convs[0].Messages[0].Content = "mutated"

	got, err := v.Get(conv.ID)
	require.NoError(t, err)
	require.Equal(t, "original", got.Title)
	require.Equal(t, "original", got.Messages[0].Content)
}

func TestVault_ReplaceAndReplaceAll(t *testing.T) {
	v := openTestVault(t, newMemRecords(), newTestKeys())
	conv, err := v.Create("q", "")
	require.NoError(t, err)

	conv.Messages = append(conv.Messages, model.NewAssistantMessage("a"))
	require.NoError(t, v.Replace(conv))
	got, _ := v.Get(conv.ID)
	require.Len(t, got.Messages, 2)

	require.NoError(t, v.ReplaceAll(sampleConversations()))
	require.Len(t, v.Conversations(), 2)

	require.ErrorIs(t, v.ReplaceAll([]model.Conversation{{}}), ErrSerialization)
	require.Len(t, v.Conversations(), 2)
}

func TestVault_Reload(t *testing.T) {
	records := newMemRecords()
	keys := newTestKeys()
	a := openTestVault(t, records, keys)
	b := openTestVault(t, records, keys)

	_, err := a.Create("from a", "")
	require.NoError(t, err)
	require.Empty(t, b.Conversations())

	b.Reload()
	require.Len(t, b.Conversations(), 1)
}

func TestVault_WithBadgerAndSQLite(t *testing.T) {
	for _, backend := range []string{BackendBadger, BackendSQLite, BackendFile} {
		t.Run(backend, func(t *testing.T) {
			records, err := OpenRecordStore(RecordOptions{
				Backend: backend,
				Path:    DefaultRecordPath(filepath.Join(t.TempDir(), "data"), backend),
				Log:     zerolog.Nop(),
			})
			require.NoError(t, err)

			require.NoError(t, records.Set(DefaultLegacyKey, legacySample))

			v := openTestVault(t, records, newTestKeys())
			require.Len(t, v.Conversations(), 1)
			_, err = records.Get(DefaultLegacyKey)
			require.ErrorIs(t, err, ErrRecordNotFound)
			require.NoError(t, v.Close())
		})
	}
}
