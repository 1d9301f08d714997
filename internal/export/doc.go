// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations out of the encrypted vault in
// readable formats.
//
// # Supported Formats
//
//   - Markdown: YAML front matter, reasoning in a <details> block
//   - JSON: indented, same shape as the stored history
//   - YAML: snake_case keys via gopkg.in/yaml.v3
//   - HTML: single self-contained page
//
// # Usage
//
//	exporter, err := export.New("markdown", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(&conv, exporter, "", nil)
//
// Exports are plaintext. Files are written 0600.
package export
