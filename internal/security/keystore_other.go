// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !linux && !darwin && !windows

package security

import (
	"fmt"
	"runtime"
)

func newPlatformStore(StoreOptions) (SecretStore, error) {
	return nil, fmt.Errorf("no platform secret store on %s", runtime.GOOS)
}
