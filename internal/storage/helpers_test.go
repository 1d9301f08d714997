// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/secchat/internal/model"
	"github.com/jeranaias/secchat/internal/security"
)

// memRecords is a map-backed RecordStore with fault injection.
type memRecords struct {
	mu      sync.Mutex
	values  map[string]string
	failSet map[string]error
	failGet map[string]error
	failDel map[string]error
	// corruptOnSet stores this value instead of what was written.
	corruptOnSet map[string]string
}

func newMemRecords() *memRecords {
	return &memRecords{
		values:       map[string]string{},
		failSet:      map[string]error{},
		failGet:      map[string]error{},
		failDel:      map[string]error{},
		corruptOnSet: map[string]string{},
	}
}

func (m *memRecords) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failGet[key]; err != nil {
		return "", err
	}
	v, ok := m.values[key]
	if !ok {
		return "", ErrRecordNotFound
	}
	return v, nil
}

func (m *memRecords) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failSet[key]; err != nil {
		return err
	}
	if corrupt, ok := m.corruptOnSet[key]; ok {
		value = corrupt
	}
	m.values[key] = value
	return nil
}

func (m *memRecords) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDel[key]; err != nil {
		return err
	}
	delete(m.values, key)
	return nil
}

func (m *memRecords) Close() error { return nil }

func (m *memRecords) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

var errDiskFull = errors.New("disk full")

func newTestKeys() *security.KeyCustodian {
	return security.NewKeyCustodian(security.NewMemorySecretStore(), "", zerolog.Nop())
}

// readOnlySecrets refuses every write, so a custodian falls back to a
// session-only key.
type readOnlySecrets struct{}

func (readOnlySecrets) Get(string) ([]byte, error) { return nil, security.ErrSecretNotFound }
func (readOnlySecrets) Set(string, []byte) error   { return errors.New("keychain locked") }
func (readOnlySecrets) Delete(string) error        { return nil }

func sampleConversations() []model.Conversation {
	return []model.Conversation{
		{
			ID:    "1",
			Title: "t",
			Messages: []model.Message{
				{Role: model.RoleUser, Content: "hello"},
				{Role: model.RoleAssistant, Content: "hi", ThinkingTime: 1.25,
					ThinkingDetails: &model.ThinkingDetails{EvalDuration: 1, EvalCount: 20, TokensPerSecond: 20}},
			},
		},
		{ID: "2", Title: "second", Messages: []model.Message{{Role: model.RoleUser, Content: "x"}}},
	}
}

const legacySample = `[{"id":"1","title":"t","messages":[{"role":"user","content":"hello"},{"role":"assistant","content":"hi","thinkingTime":1.25}]}]`

func requireEncryptedHolds(t *testing.T, records RecordStore, keys KeySource, want int) []model.Conversation {
	t.Helper()
	text, err := records.Get(DefaultRecordKey)
	require.NoError(t, err)
	convs, err := NewCodec(records, keys, "", zerolog.Nop()).Decode(text)
	require.NoError(t, err)
	require.Len(t, convs, want)
	return convs
}
