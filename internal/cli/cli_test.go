// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/secchat/internal/model"
	"github.com/jeranaias/secchat/internal/ollama"
	"github.com/jeranaias/secchat/internal/security"
	"github.com/jeranaias/secchat/internal/storage"
	"github.com/jeranaias/secchat/internal/thinking"
)

// =============================================================================
// HARNESS
// =============================================================================

// testEnv runs commands against a temp data dir, a fake Ollama server and a
// secret store that outlives each invocation.
type testEnv struct {
	t       *testing.T
	dir     string
	secrets *security.MemorySecretStore
	server  *httptest.Server

	reply     string
	passwords []string
	lines     []string
	stdin     string
}

type result struct {
	out    string
	errOut string
	code   int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		t:       t,
		dir:     t.TempDir(),
		secrets: security.NewMemorySecretStore(),
		reply:   "<think>add them up</think>It is 4.",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":         "qwen2.5:7b",
			"response":      e.reply,
			"done":          true,
			"eval_count":    12,
			"eval_duration": 1_000_000_000,
		})
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"version":"0.5.7"}`)
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"models":[
			{"name":"qwen2.5:7b","size":4700000000,"details":{"parameter_size":"7.6B"}},
			{"name":"llama3:8b","size":4900000000,"details":{"parameter_size":"8.0B"}}]}`)
	})
	e.server = httptest.NewServer(mux)
	t.Cleanup(e.server.Close)

	t.Setenv("NO_COLOR", "1")
	t.Setenv("SECCHAT_STORAGE", storage.BackendFile)
	t.Setenv("SECCHAT_OLLAMA_URL", e.server.URL)
	return e
}

func (e *testEnv) configPath() string {
	return filepath.Join(e.dir, "config.toml")
}

func (e *testEnv) run(args ...string) result {
	e.t.Helper()
	var out, errOut bytes.Buffer
	a := newApp("test", strings.NewReader(e.stdin), &out, &errOut)
	a.secretStore = func(security.StoreOptions) (security.SecretStore, error) {
		return e.secrets, nil
	}
	a.readPassword = func(w io.Writer, prompt string) (string, error) {
		if len(e.passwords) == 0 {
			return "", io.EOF
		}
		p := e.passwords[0]
		e.passwords = e.passwords[1:]
		return p, nil
	}
	a.newLiner = func() lineReader {
		return &fakeLiner{lines: e.lines}
	}

	full := append([]string{"--config", e.configPath(), "--data-dir", e.dir}, args...)
	code := a.run(full)
	return result{out: out.String(), errOut: errOut.String(), code: code}
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	res := e.run(args...)
	require.Equal(e.t, 0, res.code, "args %v\nstdout: %s\nstderr: %s", args, res.out, res.errOut)
	return res.out
}

func (e *testEnv) list() []listEntry {
	e.t.Helper()
	var entries []listEntry
	require.NoError(e.t, json.Unmarshal([]byte(e.mustRun("list", "--json")), &entries))
	return entries
}

type fakeLiner struct {
	lines   []string
	history []string
}

func (f *fakeLiner) Prompt(string) (string, error) {
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, nil
}

func (f *fakeLiner) AppendHistory(item string) { f.history = append(f.history, item) }
func (f *fakeLiner) Close() error             { return nil }

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestCLI_ChatLifecycle(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun("chat", "What", "is", "2+2?")
	require.Contains(t, out, "conversation ")
	require.Contains(t, out, "It is 4.")
	require.NotContains(t, out, "add them up")
	require.Contains(t, out, "12 tokens")

	entries := e.list()
	require.Len(t, entries, 1)
	require.Equal(t, "What is 2+2?", entries[0].Title)
	require.Equal(t, 2, entries[0].Messages)
	id := entries[0].ID
	prefix := id[:shortIDLen]

	out = e.mustRun("show", prefix, "--thinking")
	require.Contains(t, out, "add them up")
	require.Contains(t, out, "It is 4.")

	out = e.mustRun("show", prefix)
	require.NotContains(t, out, "add them up")
	require.Contains(t, out, "(reasoning hidden")

	e.reply = "Still 4."
	out = e.mustRun("chat", "--id", prefix, "Are", "you", "sure?")
	require.NotContains(t, out, "conversation ")
	require.Contains(t, out, "Still 4.")
	require.Equal(t, 4, e.list()[0].Messages)

	e.mustRun("rename", prefix, "Arithmetic")
	require.Equal(t, "Arithmetic", e.list()[0].Title)
	require.Contains(t, e.mustRun("list"), "Arithmetic")

	out = e.mustRun("delete", prefix, "--yes")
	require.Contains(t, out, "Deleted")
	require.Empty(t, e.list())
}

func TestCLI_ChatServerDown(t *testing.T) {
	e := newTestEnv(t)
	e.server.Close()

	res := e.run("chat", "hello")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.errOut, "not running")
	require.Contains(t, res.errOut, "ollama serve")

	// The failure is still recorded in the conversation.
	entries := e.list()
	require.Len(t, entries, 1)
	require.Equal(t, 2, entries[0].Messages)
	require.Contains(t, e.mustRun("show", entries[0].ID), "Error: ")
}

func TestCLI_DestructiveNeedsYes(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("chat", "keep me")
	id := e.list()[0].ID

	res := e.run("delete", id)
	require.Equal(t, 1, res.code)
	require.Contains(t, res.errOut, "use --yes")

	e.passwords = []string{"pw"}
	res = e.run("restore", "--in", filepath.Join(e.dir, "missing.secchat"))
	require.Equal(t, 1, res.code)
	require.Contains(t, res.errOut, "use --yes")

	require.Len(t, e.list(), 1)
}

func TestCLI_UnknownID(t *testing.T) {
	e := newTestEnv(t)
	res := e.run("show", "does-not-exist")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.errOut, "not found")
}

func TestCLI_Ephemeral(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("--ephemeral", "chat", "hello")

	var status StatusData
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("--ephemeral", "status", "--offline", "--json")), &status))
	require.Equal(t, "(memory)", status.StoragePath)
	require.Equal(t, 0, status.Conversations)

	_, err := os.Stat(filepath.Join(e.dir, "records.json"))
	require.True(t, os.IsNotExist(err))
}

func TestResolveID(t *testing.T) {
	records, err := storage.OpenSQLiteRecords(":memory:")
	require.NoError(t, err)
	keys := security.NewKeyCustodian(security.NewMemorySecretStore(), security.DefaultKeyAccount, zerolog.Nop())
	v, err := storage.OpenVault(storage.Options{Records: records, Keys: keys, Log: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	var convs []model.Conversation
	for _, id := range []string{"abc-1", "abc-2", "xyz"} {
		c := model.NewConversation("hi", "m")
		c.ID = id
		convs = append(convs, c)
	}
	require.NoError(t, v.ReplaceAll(convs))

	tests := []struct {
		arg     string
		want    string
		wantErr error
	}{
		{arg: "xyz", want: "xyz"},
		{arg: "x", want: "xyz"},
		{arg: "abc-2", want: "abc-2"},
		{arg: " abc-1 ", want: "abc-1"},
		{arg: "abc", wantErr: errAmbiguousID},
		{arg: "q", wantErr: storage.ErrConversationNotFound},
		{arg: "", wantErr: storage.ErrConversationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := resolveID(v, tt.arg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// REPL
// =============================================================================

func TestCLI_Repl(t *testing.T) {
	e := newTestEnv(t)
	e.lines = []string{"/id", "first question", "", "/thinking", "/new", "second question", "/bogus", "/exit", "never sent"}

	out := e.mustRun("repl")
	require.Contains(t, out, "no conversation yet")
	require.Contains(t, out, "reasoning display on")
	require.Contains(t, out, "new conversation")
	require.Contains(t, out, "unknown command /bogus")
	require.Contains(t, out, "add them up")

	entries := e.list()
	require.Len(t, entries, 2)
}

func TestCLI_ReplLastAndReload(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("chat", "earlier")
	e.lines = []string{"/last", "question", "/last", "/reload", "/id"}

	out := e.mustRun("repl")
	require.Contains(t, out, "no conversation yet")
	require.Equal(t, 2, strings.Count(out, "It is 4."))
	require.Contains(t, out, "reloaded 2 conversations")
	require.NotContains(t, out, "current conversation is gone")
}

func TestPrintConversation_Empty(t *testing.T) {
	var out bytes.Buffer
	a := newApp("test", strings.NewReader(""), &out, io.Discard)
	printConversation(a, model.Conversation{ID: "c1", Title: "Blank"}, false)
	require.Contains(t, out.String(), "Blank")
	require.Contains(t, out.String(), "(no messages)")
}

// lockedSecrets refuses writes, leaving the custodian with a session key.
type lockedSecrets struct{}

func (lockedSecrets) Get(string) ([]byte, error) { return nil, security.ErrSecretNotFound }
func (lockedSecrets) Set(string, []byte) error   { return errors.New("keychain locked") }
func (lockedSecrets) Delete(string) error        { return nil }

func TestApp_CloseForgetsSessionKey(t *testing.T) {
	a := newApp("test", strings.NewReader(""), io.Discard, io.Discard)
	a.keys = security.NewKeyCustodian(lockedSecrets{}, "", zerolog.Nop())
	key, err := a.keys.ObtainKey()
	require.NoError(t, err)
	require.Len(t, key, security.KeySize)
	require.False(t, a.keys.Persistent())

	require.NoError(t, a.close())
	require.True(t, a.keys.Persistent())
}

func TestCLI_ReplEOF(t *testing.T) {
	e := newTestEnv(t)
	e.lines = []string{"only one"}

	e.mustRun("repl")
	require.Len(t, e.list(), 1)
}

// =============================================================================
// EXPORT / BACKUP
// =============================================================================

func TestCLI_ExportStdout(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("chat", "Sorting in Go")
	id := e.list()[0].ID

	var conv model.Conversation
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("export", id, "-f", "json", "-o", "-")), &conv))
	require.Equal(t, id, conv.ID)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, "add them up", conv.Messages[1].Thinking)

	out := e.mustRun("export", id, "-f", "md", "-o", "-", "--no-thinking")
	require.Contains(t, out, "# Sorting in Go")
	require.NotContains(t, out, "add them up")

	out = e.mustRun("export", id, "-f", "json", "-o", "-", "--no-thinking")
	require.NotContains(t, out, "add them up")
	require.Contains(t, out, "It is 4.")
}

func TestCLI_ExportFile(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("chat", "Sorting in Go")
	id := e.list()[0].ID

	dest := filepath.Join(e.dir, "exports") + string(filepath.Separator)
	res := e.run("export", id, "-f", "html", "-o", dest)
	require.Equal(t, 0, res.code, res.errOut)
	require.Contains(t, res.errOut, "Exported")

	matches, err := filepath.Glob(filepath.Join(e.dir, "exports", "conversation_Sorting_in_Go_*.html"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	info, err := os.Stat(matches[0])
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestCLI_ExportUnknownFormat(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("chat", "hello")
	res := e.run("export", e.list()[0].ID, "-f", "pdf")
	require.Equal(t, 1, res.code)
}

func TestCLI_BackupRestore(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("chat", "first")
	e.mustRun("chat", "second")
	archive := filepath.Join(e.dir, "history.secchat")

	e.passwords = []string{"correct horse", "correct horse"}
	out := e.mustRun("backup", "--out", archive)
	require.Contains(t, out, "Backed up 2 conversations")

	e.mustRun("delete", e.list()[0].ID, "--yes")
	require.Len(t, e.list(), 1)

	e.passwords = []string{"wrong horse"}
	res := e.run("restore", "--in", archive, "--yes")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.errOut, "wrong passphrase")
	require.Len(t, e.list(), 1)

	e.passwords = []string{"correct horse"}
	out = e.mustRun("restore", "--in", archive, "--yes")
	require.Contains(t, out, "Restored 2 conversations")
	require.Len(t, e.list(), 2)
}

func TestCLI_BackupPassphraseMismatch(t *testing.T) {
	e := newTestEnv(t)
	archive := filepath.Join(e.dir, "history.secchat")

	e.passwords = []string{"one", "two"}
	res := e.run("backup", "--out", archive)
	require.Equal(t, 1, res.code)
	require.Contains(t, res.errOut, "do not match")

	_, err := os.Stat(archive)
	require.True(t, os.IsNotExist(err))
}

func TestCLI_BackupRequiresOut(t *testing.T) {
	e := newTestEnv(t)
	res := e.run("backup")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.errOut, "out")
}

// =============================================================================
// MIGRATION / STATUS
// =============================================================================

func TestCLI_MigrateLegacyRecord(t *testing.T) {
	e := newTestEnv(t)
	legacy := `{"conversations":[{"id":"legacy-1","title":"Old chat","messages":[{"role":"user","content":"hello"}]}],"theme":"dark"}`
	path := filepath.Join(e.dir, "records.json")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0600))

	out := e.mustRun("migrate")
	require.Contains(t, out, "migrated (1 conversations)")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var records map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &records))
	require.NotContains(t, records, "conversations")
	require.Contains(t, records, "conversations_encrypted")
	require.Contains(t, records, "theme")
	require.NotContains(t, string(raw), "hello")

	entries := e.list()
	require.Len(t, entries, 1)
	require.Equal(t, "Old chat", entries[0].Title)

	require.Contains(t, e.mustRun("migrate"), "migration: skipped")
}

func TestCLI_StatusJSON(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("chat", "hello")

	var offline StatusData
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("status", "--offline", "--json")), &offline))
	require.Equal(t, "test", offline.Version)
	require.Equal(t, e.configPath(), offline.Config)
	require.Equal(t, "memory", offline.Keystore)
	require.Equal(t, storage.BackendFile, offline.Storage)
	require.Equal(t, "conversations_encrypted", offline.RecordKey)
	require.Equal(t, 1, offline.Conversations)
	require.Equal(t, thinking.TableVersion, offline.Segmenter)
	require.Empty(t, offline.OllamaVersion)

	var online StatusData
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("status", "--json")), &online))
	require.Equal(t, "0.5.7", online.OllamaVersion)
	require.Empty(t, online.OllamaErr)
}

func TestCLI_StatusText(t *testing.T) {
	e := newTestEnv(t)
	out := e.mustRun("status", "--offline")
	require.Contains(t, out, "AES-256-GCM")
	require.Contains(t, out, "[SKIPPED]")
}

func TestCLI_Models(t *testing.T) {
	e := newTestEnv(t)
	out := e.mustRun("models")
	require.Contains(t, out, "qwen2.5:7b")
	require.Contains(t, out, "llama3:8b")
	require.Contains(t, out, "4.4 GB")
}

// =============================================================================
// TOOLS
// =============================================================================

func TestCLI_SplitJSON(t *testing.T) {
	e := newTestEnv(t)
	e.stdin = "<think>compare both options</think>Pick the second."

	var got splitResult
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("split", "--json")), &got))
	require.Equal(t, "delimiter", got.Rule)
	require.Equal(t, "compare both options", got.Reasoning)
	require.Equal(t, "Pick the second.", got.Answer)
}

func TestCLI_SplitFileNoReasoning(t *testing.T) {
	e := newTestEnv(t)
	path := filepath.Join(e.dir, "reply.txt")
	require.NoError(t, os.WriteFile(path, []byte("Just an answer."), 0600))

	out := e.mustRun("split", "--file", path)
	require.Contains(t, out, "none")
	require.Contains(t, out, "Just an answer.")
	require.NotContains(t, out, "Reasoning")
}

func TestCLI_Config(t *testing.T) {
	e := newTestEnv(t)

	require.Equal(t, e.configPath()+"\n", e.mustRun("config", "path"))
	require.Contains(t, e.mustRun("config", "keys"), "local.model")
	require.Equal(t, "qwen2.5:7b\n", e.mustRun("config", "get", "local.model"))

	e.mustRun("config", "set", "local.model", "llama3:8b")
	require.Equal(t, "llama3:8b\n", e.mustRun("config", "get", "local.model"))

	e.mustRun("config", "set", "segmenter.min_fallback_length", "250")
	require.Equal(t, "250\n", e.mustRun("config", "get", "segmenter.min_fallback_length"))

	// Environment overrides are not written back to the file.
	raw, err := os.ReadFile(e.configPath())
	require.NoError(t, err)
	require.NotContains(t, string(raw), e.server.URL)

	require.Contains(t, e.mustRun("config", "show"), `model = "llama3:8b"`)
}

func TestCLI_ConfigRejectsBadValues(t *testing.T) {
	e := newTestEnv(t)

	res := e.run("config", "set", "no.such.key", "x")
	require.Equal(t, 1, res.code)

	res = e.run("config", "set", "log.level", "loud")
	require.Equal(t, 1, res.code)

	_, err := os.Stat(e.configPath())
	require.True(t, os.IsNotExist(err))
}

func TestTTYRequiredError(t *testing.T) {
	err := error(&TTYRequiredError{Operation: "confirm deletion"})
	var tty *TTYRequiredError
	require.True(t, errors.As(err, &tty))
	require.Contains(t, err.Error(), "confirm deletion")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		require.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Proceed?"), "input %q", tt.input)
		require.Equal(t, "Proceed? [y/N]: ", out.String())
	}
}

func TestRenderTable_FlexColumn(t *testing.T) {
	out := renderTable([]column{
		{Title: "ID", Width: 4},
		{Title: "TITLE"},
	}, [][]string{
		{"abcdefgh", "a title\nwith a newline"},
	}, 40)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[1], "a...  "))
	require.NotContains(t, lines[1], "efgh")
	require.Contains(t, lines[1], "a title with a newline")
}

func TestWithHint(t *testing.T) {
	require.NoError(t, withHint(nil, "m"))

	err := withHint(&ollama.ClientError{Type: ollama.ErrTypeModelNotFound, Message: "model 'm' not found"}, "m")
	require.ErrorIs(t, err, ollama.ErrModelNotFound)
	require.Contains(t, err.Error(), "ollama pull m")

	err = withHint(&ollama.ClientError{Type: ollama.ErrTypeTimeout, Message: "request timed out"}, "m")
	require.Contains(t, err.Error(), "local.timeout_secs")

	plain := errors.New("boom")
	require.Equal(t, plain, withHint(plain, "m"))
}
