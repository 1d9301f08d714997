// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// =============================================================================
// COMMAND-BACKED SECRET STORE
// =============================================================================

// commandRunner executes a credential helper and returns its stdout.
type commandRunner func(name string, args []string, stdin []byte) ([]byte, error)

// commandSyntax describes how a credential helper CLI is invoked.
type commandSyntax struct {
	binary string
	// notFoundExit is the exit code the helper uses for a missing entry.
	notFoundExit int
	// secretOnStdin passes the secret on stdin instead of argv.
	secretOnStdin bool

	lookup func(service, account string) []string
	store  func(service, account, secret string) []string
	clear  func(service, account string) []string
}

// commandSecretStore drives a platform credential helper such as
// secret-tool (libsecret) or security (macOS Keychain).
type commandSecretStore struct {
	service string
	syntax  commandSyntax
	run     commandRunner
}

// secretToolSyntax drives libsecret's secret-tool.
var secretToolSyntax = commandSyntax{
	binary:        "secret-tool",
	notFoundExit:  1,
	secretOnStdin: true,
	lookup: func(service, account string) []string {
		return []string{"lookup", "service", service, "account", account}
	},
	store: func(service, account, _ string) []string {
		return []string{"store", "--label", service + " " + account, "service", service, "account", account}
	},
	clear: func(service, account string) []string {
		return []string{"clear", "service", service, "account", account}
	},
}

// keychainSyntax drives the macOS security tool. The tool has no
// non-interactive stdin mode, so the secret travels in argv.
var keychainSyntax = commandSyntax{
	binary:       "security",
	notFoundExit: 44,
	lookup: func(service, account string) []string {
		return []string{"find-generic-password", "-s", service, "-a", account, "-w"}
	},
	store: func(service, account, secret string) []string {
		return []string{"add-generic-password", "-U", "-s", service, "-a", account, "-w", secret}
	},
	clear: func(service, account string) []string {
		return []string{"delete-generic-password", "-s", service, "-a", account}
	},
}

func newCommandSecretStore(service string, syntax commandSyntax, run commandRunner) (*commandSecretStore, error) {
	if run == nil {
		if _, err := exec.LookPath(syntax.binary); err != nil {
			return nil, fmt.Errorf("%s not found: %w", syntax.binary, err)
		}
		run = execRunner
	}
	return &commandSecretStore{service: service, syntax: syntax, run: run}, nil
}

// Describe names the backend for status output.
func (c *commandSecretStore) Describe() string {
	return c.syntax.binary
}

// Get looks the secret up through the helper.
func (c *commandSecretStore) Get(id string) ([]byte, error) {
	out, err := c.run(c.syntax.binary, c.syntax.lookup(c.service, id), nil)
	if err != nil {
		if exitCode(err) == c.syntax.notFoundExit {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("%s lookup failed: %w", c.syntax.binary, err)
	}
	secret := bytes.TrimSpace(out)
	if len(secret) == 0 {
		return nil, ErrSecretNotFound
	}
	return secret, nil
}

// Set stores the secret, replacing an existing entry.
func (c *commandSecretStore) Set(id string, secret []byte) error {
	var stdin []byte
	argSecret := ""
	if c.syntax.secretOnStdin {
		stdin = secret
	} else {
		argSecret = string(secret)
	}
	if _, err := c.run(c.syntax.binary, c.syntax.store(c.service, id, argSecret), stdin); err != nil {
		return fmt.Errorf("%s store failed: %w", c.syntax.binary, err)
	}
	return nil
}

// Delete removes the entry. A missing entry is not an error.
func (c *commandSecretStore) Delete(id string) error {
	if _, err := c.run(c.syntax.binary, c.syntax.clear(c.service, id), nil); err != nil {
		if exitCode(err) == c.syntax.notFoundExit {
			return nil
		}
		return fmt.Errorf("%s clear failed: %w", c.syntax.binary, err)
	}
	return nil
}

func execRunner(name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.Command(name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// exitCoder is satisfied by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// exitCode extracts the process exit code, or -1.
func exitCode(err error) int {
	var exitErr exitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
