// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build linux

package security

// newPlatformStore uses libsecret (gnome-keyring, kwallet) via secret-tool.
func newPlatformStore(opts StoreOptions) (SecretStore, error) {
	return newCommandSecretStore(opts.Service, secretToolSyntax, nil)
}
