// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/secchat/internal/model"
	"github.com/jeranaias/secchat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a conversation to the target format and returns the content.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md", ".html").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Export format names accepted by New.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatHTML     = "html"
)

// ErrNilConversation is returned when Export is given nil.
var ErrNilConversation = errors.New("conversation is nil")

// Formats lists the supported format names.
func Formats() []string {
	return []string{FormatMarkdown, FormatJSON, FormatYAML, FormatHTML}
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior. JSON and YAML honor IncludeThinking
// only; the other flags shape the Markdown and HTML layouts.
type Options struct {
	// IncludeMetadata includes the metadata header (model, dates, counts).
	IncludeMetadata bool

	// IncludeThinking includes the reasoning segment of assistant messages.
	IncludeThinking bool

	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool

	// OpenAfterExport opens the written file in the default application.
	OpenAfterExport bool

	// Now stamps the export; nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeThinking:   true,
		IncludeTimestamps: true,
	}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// dataView is the conversation as the data formats write it: a copy with
// reasoning removed unless it was asked for.
func dataView(conv *model.Conversation, opts *Options) *model.Conversation {
	if opts == nil || opts.IncludeThinking {
		return conv
	}
	view := conv.Clone()
	for i := range view.Messages {
		view.Messages[i].Thinking = ""
	}
	return &view
}

// New returns the exporter for a format name. "md" and "yml" are accepted
// as aliases.
func New(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown, "md":
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	case FormatYAML, "yml":
		return NewYAMLExporter(opts), nil
	case FormatHTML, "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (supported: %s)",
			format, strings.Join(Formats(), ", "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports conv with exporter and writes the result to path. An empty
// path, or a path naming a directory with a trailing separator, gets a
// generated file name. Returns the path written.
//
// Exported files hold plaintext conversation content and are written 0600.
func ToFile(conv *model.Conversation, exporter Exporter, path string, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if path == "" || strings.HasSuffix(path, string(filepath.Separator)) || strings.HasSuffix(path, "/") {
		path = filepath.Join(path, FileName(conv, exporter, opts.now()))
	}

	if err := util.AtomicWriteFileWithDir(path, content, 0600, 0700); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if opts.OpenAfterExport {
		if err := openFile(path); err != nil {
			return path, fmt.Errorf("exported to %s but could not open it: %w", path, err)
		}
	}
	return path, nil
}

// FileName builds "conversation_<title>_<timestamp><ext>".
func FileName(conv *model.Conversation, exporter Exporter, now time.Time) string {
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(conv.DisplayTitle()),
		now.Format("20060102_150405"),
		exporter.FileExtension(),
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSuffix(s, "..."), model.TitleLength)

	replacer := map[rune]rune{
		'/':  '-',
		'\\': '-',
		':':  '-',
		'*':  '-',
		'?':  '-',
		'"':  '-',
		'<':  '-',
		'>':  '-',
		'|':  '-',
		' ':  '_',
		'\t': '_',
		'\n': '_',
		'\r': '_',
	}

	var b strings.Builder
	for _, r := range s {
		if replacement, found := replacer[r]; found {
			b.WriteRune(replacement)
		} else if r < 32 || r == 127 {
			b.WriteRune('-')
		} else {
			b.WriteRune(r)
		}
	}

	result := strings.Trim(b.String(), "._-")
	if result == "" {
		return "conversation"
	}
	return result
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		// Empty quoted title so start treats path as the target.
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

// formatSeconds formats a duration in seconds to a human-readable string.
func formatSeconds(s float64) string {
	if s < 1 {
		return fmt.Sprintf("%dms", int64(s*1000))
	}
	if s < 60 {
		return fmt.Sprintf("%.2fs", s)
	}
	minutes := int(s / 60)
	return fmt.Sprintf("%dm %ds", minutes, int(s)%60)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// messageStats renders the generation statistics of an assistant message,
// or "" when there are none.
func messageStats(msg *model.Message) string {
	var parts []string
	if msg.ThinkingTime > 0 {
		parts = append(parts, "Time: "+formatSeconds(msg.ThinkingTime))
	}
	if d := msg.ThinkingDetails; d != nil {
		if d.EvalCount > 0 {
			parts = append(parts, fmt.Sprintf("Tokens: %d", d.EvalCount))
		}
		if d.TokensPerSecond > 0 {
			parts = append(parts, fmt.Sprintf("Speed: %.1f tok/s", d.TokensPerSecond))
		}
	}
	return strings.Join(parts, " | ")
}
