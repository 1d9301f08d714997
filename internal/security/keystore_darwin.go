// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build darwin

package security

// newPlatformStore uses the login Keychain via /usr/bin/security.
func newPlatformStore(opts StoreOptions) (SecretStore, error) {
	return newCommandSecretStore(opts.Service, keychainSyntax, nil)
}
