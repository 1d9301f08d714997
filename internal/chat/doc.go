// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat sends prompts to the local model server and records both
// sides of the exchange in the encrypted vault.
//
// Each prompt is sent on its own, without earlier turns. The reply is split
// by the thinking segmenter: reasoning is stored in the message's Thinking
// field and the answer in Content, together with timing statistics.
package chat
