// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/secchat/internal/model"
	"github.com/jeranaias/secchat/internal/security"
)

// Default record keys.
const (
	DefaultRecordKey = "conversations_encrypted"
	DefaultLegacyKey = "conversations"
)

// KeySource supplies the conversation key. security.KeyCustodian
// implements it.
type KeySource interface {
	ObtainKey() ([]byte, error)
}

// =============================================================================
// CODEC
// =============================================================================

// Codec reads and writes the encrypted conversation record.
type Codec struct {
	records RecordStore
	keys    KeySource
	key     string
	log     zerolog.Logger

	mu sync.Mutex
}

// NewCodec creates a codec for the record named recordKey.
func NewCodec(records RecordStore, keys KeySource, recordKey string, log zerolog.Logger) *Codec {
	if recordKey == "" {
		recordKey = DefaultRecordKey
	}
	return &Codec{
		records: records,
		keys:    keys,
		key:     recordKey,
		log:     log.With().Str("component", "codec").Logger(),
	}
}

// RecordKey returns the name of the encrypted record.
func (c *Codec) RecordKey() string {
	return c.key
}

// Save encrypts convs and replaces the record. Concurrent saves are
// serialized; the last one wins.
func (c *Codec) Save(convs []model.Conversation) error {
	plaintext, err := Marshal(convs)
	if err != nil {
		return err
	}

	key, err := c.keys.ObtainKey()
	if err != nil {
		return err
	}
	defer security.ZeroBytes(key)

	text, err := security.Encrypt(key, plaintext)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.records.Set(c.key, text); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.key, err)
	}
	c.log.Debug().Int("conversations", len(convs)).Msg("saved conversation history")
	return nil
}

// Load returns the stored conversations. A missing or empty record is the
// first-run state. Unreadable history is logged and reported as empty; the
// result is never nil.
func (c *Codec) Load() []model.Conversation {
	text, err := c.records.Get(c.key)
	if errors.Is(err, ErrRecordNotFound) || (err == nil && strings.TrimSpace(text) == "") {
		return []model.Conversation{}
	}
	if err != nil {
		c.log.Error().Err(err).Str("class", "store").Msg("failed to read conversation history")
		return []model.Conversation{}
	}

	convs, err := c.Decode(text)
	if err != nil {
		c.log.Error().Err(err).Str("class", errorClass(err)).
			Msg("conversation history is unreadable, starting empty")
		return []model.Conversation{}
	}
	return convs
}

// Decode decrypts and parses envelope text. Errors wrap
// security.ErrIntegrity or ErrSerialization.
func (c *Codec) Decode(text string) ([]model.Conversation, error) {
	key, err := c.keys.ObtainKey()
	if err != nil {
		return nil, err
	}
	defer security.ZeroBytes(key)

	plaintext, err := security.Decrypt(key, strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}
	defer security.ZeroBytes(plaintext)
	return Unmarshal(plaintext)
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// Marshal encodes convs as compact JSON. A nil list encodes as [].
func Marshal(convs []model.Conversation) ([]byte, error) {
	if convs == nil {
		convs = []model.Conversation{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

// Unmarshal parses and validates a conversation list. JSON null decodes as
// an empty list.
func Unmarshal(data []byte) ([]model.Conversation, error) {
	var convs []model.Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	for i := range convs {
		if err := convs[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		if convs[i].Messages == nil {
			convs[i].Messages = []model.Message{}
		}
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return convs, nil
}

// errorClass names the failure category for logs.
func errorClass(err error) string {
	switch {
	case errors.Is(err, security.ErrIntegrity):
		return "integrity"
	case errors.Is(err, security.ErrInvalidKey):
		return "key"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	default:
		return "unknown"
	}
}
