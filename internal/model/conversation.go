// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TitleLength is the number of runes of the first prompt kept as a title.
const TitleLength = 50

// DefaultTitle is shown for conversations without a title.
const DefaultTitle = "New Conversation"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	// Identity. ID is opaque: legacy records use non-uuid ids.
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`

	Messages []Message `json:"messages" yaml:"messages"`

	Model     string    `json:"model,omitempty" yaml:"model,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero" yaml:"updated_at,omitempty"`
}

// NewConversation starts a conversation whose title comes from the first
// prompt. The prompt itself is added as the first user message.
func NewConversation(firstMessage, model string) Conversation {
	now := time.Now()
	conv := Conversation{
		ID:        uuid.NewString(),
		Title:     TitleFromPrompt(firstMessage),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]Message, 0, 2),
	}
	if firstMessage != "" {
		conv.Messages = append(conv.Messages, NewUserMessage(firstMessage))
	}
	return conv
}

// TitleFromPrompt keeps the first TitleLength runes of the prompt, adding
// "..." when the prompt is longer.
func TitleFromPrompt(prompt string) string {
	prompt = strings.TrimSpace(strings.Join(strings.Fields(prompt), " "))
	runes := []rune(prompt)
	if len(runes) > TitleLength {
		return string(runes[:TitleLength]) + "..."
	}
	return prompt
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and bumps UpdatedAt.
func (c *Conversation) AddMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	if c.Title == "" && msg.Role == RoleUser {
		c.Title = TitleFromPrompt(msg.Content)
	}
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = strings.TrimSpace(title)
	c.UpdatedAt = time.Now()
}

// DisplayTitle returns the conversation title or a default.
func (c *Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle
}

// Preview returns a one-line preview of the latest user prompt.
func (c *Conversation) Preview(maxRunes int) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Preview(maxRunes)
		}
	}
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}
	return c.Messages[0].Preview(maxRunes)
}

// =============================================================================
// VALIDATION AND COPYING
// =============================================================================

// Validate checks the fields a decoded record must carry.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("conversation has no id")
	}
	for i, msg := range c.Messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("conversation %s message %d: %w", c.ID, i, err)
		}
	}
	return nil
}

// Clone creates a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	msgs := make([]Message, len(c.Messages))
	for i, msg := range c.Messages {
		msgs[i] = msg.Clone()
	}
	c.Messages = msgs
	return c
}

// CloneAll deep-copies a conversation list. The result is never nil.
func CloneAll(convs []Conversation) []Conversation {
	out := make([]Conversation, len(convs))
	for i, conv := range convs {
		out[i] = conv.Clone()
	}
	return out
}
