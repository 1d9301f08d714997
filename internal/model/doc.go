// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// The JSON form of these types is the persisted plaintext of the encrypted
// conversation record. Field names are camelCase so that records written by
// the earlier desktop client decode without translation.
//
// # Key Types
//
//   - Conversation: ordered messages with an id and a display title
//   - Message: a single user or assistant turn, with optional reasoning
//     and generation statistics
//   - Role: user or assistant
//
// # Usage
//
//	conv := model.NewConversation("What is GCM?", "qwen2.5:7b")
//	conv.AddMessage(model.NewAssistantMessage("An AEAD mode."))
package model
