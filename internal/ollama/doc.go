// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with a local
// Ollama server.
//
// Only the non-streaming generate endpoint is used. Replies are segmented
// into reasoning and answer once complete.
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL: "http://127.0.0.1:11434",
//	})
//	resp, err := client.Generate(ctx, "qwen2.5:7b", "Hello")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.Response, resp.TokensPerSecond())
//
// Errors are *ClientError values; use IsNotRunning, IsTimeout and
// IsModelNotFound (or errors.Is against the sentinels) to classify them.
package ollama
