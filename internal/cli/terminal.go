// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is used when the width cannot be read.
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the narrowest layout tables are squeezed into.
	MinTerminalWidth = 40
)

// fder is satisfied by *os.File.
type fder interface{ Fd() uintptr }

// isTerminal reports whether a stream the app was given is a terminal.
// Buffers and pipes are not.
func isTerminal(stream any) bool {
	f, ok := stream.(fder)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w when it is a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(fder)
	if !ok {
		return DefaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return max(width, MinTerminalWidth)
}

// interactive reports whether prompts can be answered on the app's input.
func (a *app) interactive() bool {
	return isTerminal(a.in)
}

// =============================================================================
// COLOR
// =============================================================================

var (
	colorsEnabled     bool
	colorsEnabledOnce sync.Once
)

// ColorsEnabled reports whether stdout gets styled output. NO_COLOR
// (https://no-color.org/) wins over FORCE_COLOR, which wins over TTY
// detection.
func ColorsEnabled() bool {
	colorsEnabledOnce.Do(func() {
		switch {
		case termenv.EnvNoColor():
			colorsEnabled = false
		case os.Getenv("FORCE_COLOR") != "":
			colorsEnabled = true
		default:
			colorsEnabled = isTerminal(os.Stdout)
		}
	})
	return colorsEnabled
}

// GetColorProfile returns the profile lipgloss renders with: Ascii when
// colors are off, otherwise what the terminal advertises.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.NewOutput(os.Stdout).EnvColorProfile()
}

// =============================================================================
// PROMPTS
// =============================================================================

// TTYRequiredError is returned when a command needs an answer from the user
// but input is not a terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	if e.Operation != "" {
		return "stdin is not a terminal; cannot " + e.Operation + " interactively"
	}
	return "stdin is not a terminal; interactive input not available"
}

// passwordReader prompts for a secret. The prompt goes to w.
type passwordReader func(w io.Writer, prompt string) (string, error)

// readPasswordTerminal reads a passphrase without echo. When stdin is not
// a terminal a single line is read instead so archives can be scripted.
func readPasswordTerminal(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	if !isTerminal(os.Stdin) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		fmt.Fprintln(w)
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// confirm asks a yes/no question. Anything but y or yes is no.
func confirm(in io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// confirmOrFail asks question when input is a terminal. Without one the
// caller must have passed --yes; operation names what needed confirming.
func (a *app) confirmOrFail(question, operation string) (bool, error) {
	if !a.interactive() {
		return false, &TTYRequiredError{Operation: operation}
	}
	if !confirm(a.in, a.out, question) {
		fmt.Fprintln(a.out, DimStyle.Render("Cancelled"))
		return false, nil
	}
	return true, nil
}
