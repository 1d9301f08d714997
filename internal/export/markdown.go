// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/secchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontMatter is marshaled with yaml.v3 so titles never need hand escaping.
type frontMatter struct {
	Title     string `yaml:"title"`
	ID        string `yaml:"id"`
	Model     string `yaml:"model,omitempty"`
	Date      string `yaml:"date,omitempty"`
	Updated   string `yaml:"updated,omitempty"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	var sb strings.Builder
	exported := e.options.now()

	if e.options.IncludeMetadata {
		fm := frontMatter{
			Title:     conv.DisplayTitle(),
			ID:        conv.ID,
			Model:     conv.Model,
			Messages:  len(conv.Messages),
			Exported:  exported.Format(time.RFC3339),
			Generator: "secchat",
		}
		if !conv.CreatedAt.IsZero() {
			fm.Date = conv.CreatedAt.Format(time.RFC3339)
		}
		if !conv.UpdatedAt.IsZero() {
			fm.Updated = conv.UpdatedAt.Format(time.RFC3339)
		}
		data, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(data)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.DisplayTitle()))

	if e.options.IncludeMetadata {
		if conv.Model != "" {
			fmt.Fprintf(&sb, "- **Model**: %s\n", conv.Model)
		}
		if !conv.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(conv.CreatedAt))
		}
		fmt.Fprintf(&sb, "- **Messages**: %d\n\n---\n\n", len(conv.Messages))
	}

	for i := range conv.Messages {
		msg := &conv.Messages[i]

		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", msg.Role.DisplayName(), formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", msg.Role.DisplayName())
		}

		if e.options.IncludeThinking && msg.HasThinking() {
			sb.WriteString("<details>\n<summary>Thinking")
			if msg.ThinkingTime > 0 {
				fmt.Fprintf(&sb, " (%s)", formatSeconds(msg.ThinkingTime))
			}
			sb.WriteString("</summary>\n\n")
			sb.WriteString(strings.TrimSpace(msg.Thinking))
			sb.WriteString("\n\n</details>\n\n")
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if msg.Role == model.RoleAssistant && e.options.IncludeMetadata {
			if stats := messageStats(msg); stats != "" {
				fmt.Fprintf(&sb, "<sub>%s</sub>\n\n", html.EscapeString(stats))
			}
		}

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "---\n\n*Exported from secchat on %s*\n",
		exported.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only characters that would break formatting in headings.
	r := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
		"\n", " ",
	)
	return r.Replace(s)
}
