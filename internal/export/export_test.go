// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/secchat/internal/model"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleConversation() *model.Conversation {
	created := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return &model.Conversation{
		ID:        "c1",
		Title:     "Sorting in Go",
		Model:     "qwen2.5:7b",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "How do I sort a slice?", Timestamp: created},
			{
				Role:         model.RoleAssistant,
				Content:      "Use `slices.Sort`:\n\n```go\nslices.Sort(xs)\n```",
				Thinking:     "The user wants <the> stdlib way.",
				ThinkingTime: 2.5,
				ThinkingDetails: &model.ThinkingDetails{
					EvalDuration: 2, EvalCount: 64, TokensPerSecond: 32,
				},
				Timestamp: created.Add(3 * time.Second),
			},
		},
	}
}

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func TestNew_Formats(t *testing.T) {
	for _, name := range []string{"markdown", "md", "JSON", "yaml", "yml", "html"} {
		ex, err := New(name, nil)
		require.NoError(t, err, name)
		require.NotNil(t, ex)
	}
	_, err := New("pdf", nil)
	require.ErrorContains(t, err, "unsupported export format")
}

func TestExport_NilConversation(t *testing.T) {
	for _, name := range Formats() {
		ex, err := New(name, nil)
		require.NoError(t, err)
		_, err = ex.Export(nil)
		require.ErrorIs(t, err, ErrNilConversation)
	}
}

func TestMarkdown_FrontMatterAndThinking(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions()).Export(sampleConversation())
	require.NoError(t, err)
	md := string(out)

	require.True(t, strings.HasPrefix(md, "---\n"))
	end := strings.Index(md[4:], "---\n")
	require.Positive(t, end)

	var fm frontMatter
	require.NoError(t, yaml.Unmarshal([]byte(md[4:4+end]), &fm))
	require.Equal(t, "Sorting in Go", fm.Title)
	require.Equal(t, "qwen2.5:7b", fm.Model)
	require.Equal(t, 2, fm.Messages)
	require.Equal(t, "secchat", fm.Generator)

	require.Contains(t, md, "# Sorting in Go")
	require.Contains(t, md, "<details>\n<summary>Thinking (2.50s)</summary>")
	require.Contains(t, md, "The user wants <the> stdlib way.")
	require.Contains(t, md, "```go\nslices.Sort(xs)\n```")
	require.Contains(t, md, "Tokens: 64")
	require.Contains(t, md, "Speed: 32.0 tok/s")
}

func TestMarkdown_TitleInjection(t *testing.T) {
	conv := sampleConversation()
	conv.Title = "Test\nInjection: malicious"

	out, err := NewMarkdownExporter(testOptions()).Export(conv)
	require.NoError(t, err)

	for _, line := range strings.Split(string(out), "\n")[:10] {
		require.False(t, strings.HasPrefix(line, "Injection:"), "front matter line injected")
	}
}

func TestMarkdown_WithoutThinking(t *testing.T) {
	opts := testOptions()
	opts.IncludeThinking = false
	opts.IncludeMetadata = false

	out, err := NewMarkdownExporter(opts).Export(sampleConversation())
	require.NoError(t, err)
	require.NotContains(t, string(out), "<details>")
	require.NotContains(t, string(out), "stdlib way")
	require.False(t, strings.HasPrefix(string(out), "---"))
}

func TestJSON_RoundTrip(t *testing.T) {
	conv := sampleConversation()
	out, err := NewJSONExporter(nil).Export(conv)
	require.NoError(t, err)
	require.Contains(t, string(out), "\n  \"id\": \"c1\"")

	var back model.Conversation
	require.NoError(t, json.Unmarshal(out, &back))
	require.Equal(t, conv.ID, back.ID)
	require.Equal(t, conv.Messages[1].Thinking, back.Messages[1].Thinking)
	require.Equal(t, 64, back.Messages[1].ThinkingDetails.EvalCount)
}

func TestYAML_Fields(t *testing.T) {
	out, err := NewYAMLExporter(nil).Export(sampleConversation())
	require.NoError(t, err)
	y := string(out)
	require.Contains(t, y, "title: Sorting in Go")
	require.Contains(t, y, "thinking_time: 2.5")
	require.Contains(t, y, "eval_count: 64")
}

func TestDataFormats_WithoutThinking(t *testing.T) {
	opts := testOptions()
	opts.IncludeThinking = false
	conv := sampleConversation()

	out, err := NewJSONExporter(opts).Export(conv)
	require.NoError(t, err)
	require.NotContains(t, string(out), "stdlib way")
	require.Contains(t, string(out), "\"evalCount\": 64")

	out, err = NewYAMLExporter(opts).Export(conv)
	require.NoError(t, err)
	require.NotContains(t, string(out), "stdlib way")

	// The caller's conversation is untouched.
	require.Equal(t, "The user wants <the> stdlib way.", conv.Messages[1].Thinking)
}

func TestHTML_EscapesContent(t *testing.T) {
	conv := sampleConversation()
	conv.Messages[0].Content = "<script>alert('xss')</script>"
	conv.Messages[1].Content = "```<script>\ncode\n```"

	out, err := NewHTMLExporter(testOptions()).Export(conv)
	require.NoError(t, err)
	page := string(out)

	require.NotContains(t, page, "<script>")
	require.Contains(t, page, "&lt;script&gt;")
	require.Contains(t, page, "<details class=\"thinking\">")
	require.Contains(t, page, "The user wants &lt;the&gt; stdlib way.")
}

func TestHTML_CodeBlocks(t *testing.T) {
	got := formatHTMLContent("Intro `x`\n\n```go\nfmt.Println(\"<hi>\")\n```\n\nDone")
	require.Contains(t, got, "<p>Intro <code>x</code></p>")
	require.Contains(t, got, "<span class=\"code-lang\">go</span><code>fmt.Println(&#34;&lt;hi&gt;&#34;)</code>")
	require.Contains(t, got, "<p>Done</p>")
}

func TestToFile_GeneratedName(t *testing.T) {
	dir := t.TempDir() + string(filepath.Separator)

	path, err := ToFile(sampleConversation(), NewJSONExporter(nil), dir, testOptions())
	require.NoError(t, err)
	require.Equal(t, "conversation_Sorting_in_Go_20250314_092653.json", filepath.Base(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestToFile_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.md")
	got, err := ToFile(sampleConversation(), NewMarkdownExporter(nil), path, testOptions())
	require.NoError(t, err)
	require.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# Sorting in Go")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello world", "hello_world"},
		{"a/b\\c:d", "a-b-c-d"},
		{"", "conversation"},
		{"...", "conversation"},
		{"Long title that was cut...", "Long_title_that_was_cut"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}

func TestFormatSeconds(t *testing.T) {
	require.Equal(t, "250ms", formatSeconds(0.25))
	require.Equal(t, "2.50s", formatSeconds(2.5))
	require.Equal(t, "2m 5s", formatSeconds(125))
}
