// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the secchat command line.
//
// The root command loads configuration, builds the logger and opens the
// encrypted vault once; subcommands receive it through the shared app
// value. Commands:
//
//	chat      send one prompt and print the answer
//	repl      interactive session with line editing
//	list      list conversations
//	show      print a conversation
//	rename    change a conversation title
//	delete    remove a conversation
//	export    write a conversation as markdown, json, yaml or html
//	backup    write a passphrase-encrypted archive
//	restore   replace the history from an archive
//	migrate   report the plaintext-to-encrypted migration outcome
//	status    key, store and model server status
//	models    list models installed on the server
//	split     segment text from stdin into reasoning and answer
//	config    show or change configuration
//
// Output is styled with lipgloss when stdout is a terminal and plain
// otherwise (NO_COLOR and FORCE_COLOR are honored).
package cli
