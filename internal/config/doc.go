// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for secchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - KeystoreConfig: where the conversation key lives
//   - StorageConfig: record backend and record names
//   - LocalConfig: local model server
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command-line flags (applied by the CLI)
//   - Environment variables (SECCHAT_*)
//   - ~/.secchat/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.Timeout()
package config
