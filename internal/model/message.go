// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/jeranaias/secchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ThinkingDetails holds generation statistics reported by the model server.
type ThinkingDetails struct {
	// EvalDuration is the generation time in seconds.
	EvalDuration    float64 `json:"evalDuration" yaml:"eval_duration"`
	EvalCount       int     `json:"evalCount" yaml:"eval_count"`
	TokensPerSecond float64 `json:"tokensPerSecond" yaml:"tokens_per_second"`
}

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`

	// Thinking is the reasoning segment split off the raw model output.
	Thinking string `json:"thinking,omitempty" yaml:"thinking,omitempty"`
	// ThinkingTime is the wall-clock seconds the request took.
	ThinkingTime    float64          `json:"thinkingTime,omitempty" yaml:"thinking_time,omitempty"`
	ThinkingDetails *ThinkingDetails `json:"thinkingDetails,omitempty" yaml:"thinking_details,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero" yaml:"timestamp,omitempty"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// HasThinking reports whether reasoning was split off this message.
func (m Message) HasThinking() bool {
	return m.Thinking != ""
}

// Preview returns the content on one line, truncated to maxRunes.
func (m Message) Preview(maxRunes int) string {
	return util.TruncateRunes(util.SingleLine(m.Content), maxRunes)
}

// Validate checks the role.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("unknown message role %q", m.Role)
	}
	return nil
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.ThinkingDetails != nil {
		details := *m.ThinkingDetails
		m.ThinkingDetails = &details
	}
	return m
}
