// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/jeranaias/secchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

var (
	htmlCodeBlockRe  = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")
	htmlInlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
)

// HTMLExporter exports conversations to a single self-contained HTML page.
// Reasoning is rendered in a collapsed <details> element.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	title := html.EscapeString(conv.DisplayTitle())
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString("<meta name=\"generator\" content=\"secchat\">\n")
	sb.WriteString(htmlStyle)
	sb.WriteString("</head>\n<body>\n<div class=\"container\">\n")

	fmt.Fprintf(&sb, "<header><h1>%s</h1>\n", title)
	if e.options.IncludeMetadata {
		sb.WriteString("<div class=\"meta\">")
		if conv.Model != "" {
			fmt.Fprintf(&sb, "<span><strong>Model:</strong> %s</span>", html.EscapeString(conv.Model))
		}
		if !conv.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "<span><strong>Created:</strong> %s</span>", formatTimestamp(conv.CreatedAt))
		}
		fmt.Fprintf(&sb, "<span><strong>Messages:</strong> %d</span>", len(conv.Messages))
		sb.WriteString("</div>\n")
	}
	sb.WriteString("</header>\n<main>\n")

	for i := range conv.Messages {
		e.renderMessage(&sb, &conv.Messages[i])
	}

	sb.WriteString("</main>\n")
	fmt.Fprintf(&sb, "<footer>Exported from secchat on %s</footer>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

func (e *HTMLExporter) renderMessage(sb *strings.Builder, msg *model.Message) {
	role := html.EscapeString(strings.ToLower(string(msg.Role)))
	fmt.Fprintf(sb, "<section class=\"message %s\">\n<div class=\"message-header\"><span class=\"role\">%s</span>",
		role, html.EscapeString(msg.Role.DisplayName()))
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		fmt.Fprintf(sb, "<span class=\"timestamp\">%s</span>", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("</div>\n")

	if e.options.IncludeThinking && msg.HasThinking() {
		sb.WriteString("<details class=\"thinking\"><summary>Thinking")
		if msg.ThinkingTime > 0 {
			fmt.Fprintf(sb, " (%s)", formatSeconds(msg.ThinkingTime))
		}
		sb.WriteString("</summary>\n")
		sb.WriteString(formatHTMLContent(msg.Thinking))
		sb.WriteString("\n</details>\n")
	}

	sb.WriteString("<div class=\"content\">\n")
	sb.WriteString(formatHTMLContent(msg.Content))
	sb.WriteString("\n</div>\n")

	if msg.Role == model.RoleAssistant && e.options.IncludeMetadata {
		if stats := messageStats(msg); stats != "" {
			fmt.Fprintf(sb, "<div class=\"stats\">%s</div>\n", html.EscapeString(stats))
		}
	}
	sb.WriteString("</section>\n")
}

// formatHTMLContent escapes text and turns fenced code, inline code and
// blank-line separated paragraphs into markup.
func formatHTMLContent(content string) string {
	content = strings.TrimSpace(content)

	var out strings.Builder
	last := 0
	for _, m := range htmlCodeBlockRe.FindAllStringSubmatchIndex(content, -1) {
		writeParagraphs(&out, content[last:m[0]])
		lang := content[m[2]:m[3]]
		code := strings.TrimRight(content[m[4]:m[5]], "\n")
		out.WriteString("<pre class=\"code\">")
		if lang != "" {
			fmt.Fprintf(&out, "<span class=\"code-lang\">%s</span>", html.EscapeString(lang))
		}
		fmt.Fprintf(&out, "<code>%s</code></pre>\n", html.EscapeString(code))
		last = m[1]
	}
	writeParagraphs(&out, content[last:])
	return strings.TrimRight(out.String(), "\n")
}

func writeParagraphs(out *strings.Builder, text string) {
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		para = html.EscapeString(para)
		para = htmlInlineCodeRe.ReplaceAllString(para, "<code>$1</code>")
		para = strings.ReplaceAll(para, "\n", "<br>\n")
		fmt.Fprintf(out, "<p>%s</p>\n", para)
	}
}

const htmlStyle = `<style>
:root { --bg: #ffffff; --fg: #1f2328; --muted: #656d76; --border: #d0d7de; --user: #f6f8fa; --code: #f6f8fa; }
@media (prefers-color-scheme: dark) {
  :root { --bg: #0d1117; --fg: #e6edf3; --muted: #8d96a0; --border: #30363d; --user: #161b22; --code: #161b22; }
}
body { margin: 0; background: var(--bg); color: var(--fg); font: 15px/1.6 -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; }
.container { max-width: 860px; margin: 0 auto; padding: 24px; }
header { border-bottom: 1px solid var(--border); margin-bottom: 16px; }
.meta span { margin-right: 16px; color: var(--muted); font-size: 13px; }
.message { border: 1px solid var(--border); border-radius: 8px; padding: 12px 16px; margin: 12px 0; }
.message.user { background: var(--user); }
.message-header { display: flex; justify-content: space-between; font-weight: 600; }
.timestamp, .stats, footer { color: var(--muted); font-size: 12px; }
.thinking { color: var(--muted); margin: 8px 0; }
pre.code { background: var(--code); padding: 12px; border-radius: 6px; overflow-x: auto; }
.code-lang { display: block; color: var(--muted); font-size: 12px; }
code { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; }
footer { margin-top: 24px; text-align: center; }
</style>
`
