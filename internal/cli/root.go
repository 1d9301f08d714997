// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/secchat/internal/chat"
	"github.com/jeranaias/secchat/internal/config"
	"github.com/jeranaias/secchat/internal/logging"
	"github.com/jeranaias/secchat/internal/ollama"
	"github.com/jeranaias/secchat/internal/security"
	"github.com/jeranaias/secchat/internal/storage"
	"github.com/jeranaias/secchat/internal/thinking"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
	ephemeral  bool
}

// app carries what the commands share. The vault is opened at most once
// per process and closed by Execute.
type app struct {
	version string
	flags   globalFlags

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	cfgPath string
	log     zerolog.Logger

	store  security.SecretStore
	keys   *security.KeyCustodian
	vault  *storage.Vault
	client *ollama.Client

	// Seams for tests.
	readPassword passwordReader
	newLiner     func() lineReader
	secretStore  func(opts security.StoreOptions) (security.SecretStore, error)
}

func newApp(version string, in io.Reader, out, errOut io.Writer) *app {
	return &app{
		version:      version,
		in:           in,
		out:          out,
		errOut:       errOut,
		log:          zerolog.Nop(),
		readPassword: readPasswordTerminal,
		newLiner:     newTerminalLiner,
		secretStore:  security.NewSecretStore,
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	a := newApp(version, os.Stdin, os.Stdout, os.Stderr)
	return a.run(os.Args[1:])
}

func (a *app) run(args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(a.errOut, ErrorStyle.Render("Error: ")+err.Error())
		return 1
	}
	return 0
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "secchat",
		Short: "Encrypted local chat history for Ollama",
		Long: `secchat keeps conversations with a local Ollama model in an encrypted
store. The history is sealed with AES-256-GCM under a key held in the
platform credential store; reasoning is split from each answer and kept
alongside it.`,
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default ~/.secchat/config.toml)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (overrides config)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.BoolVar(&a.flags.ephemeral, "ephemeral", false, "keep key and history in memory only")

	root.AddCommand(
		newChatCmd(a),
		newReplCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newRenameCmd(a),
		newDeleteCmd(a),
		newExportCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newMigrateCmd(a),
		newStatusCmd(a),
		newModelsCmd(a),
		newSplitCmd(a),
		newConfigCmd(a),
	)
	return root
}

// loadConfig reads the config file and applies flag overrides.
func (a *app) loadConfig() error {
	path := a.flags.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return err
	}
	if a.flags.dataDir != "" {
		cfg.DataDir = a.flags.dataDir
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if a.flags.ephemeral {
		cfg.Keystore.Backend = security.BackendMemory
		if cfg.Storage.Backend == storage.BackendFile {
			cfg.Storage.Backend = storage.BackendBadger
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: a.errOut})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.cfgPath = path
	a.log = log
	return nil
}

// =============================================================================
// SHARED SERVICES
// =============================================================================

// openVault builds the key custodian, record store and vault on first use.
func (a *app) openVault() (*storage.Vault, error) {
	if a.vault != nil {
		return a.vault, nil
	}
	cfg := a.cfg

	store, err := a.secretStore(security.StoreOptions{
		Backend: cfg.Keystore.Backend,
		Service: cfg.Keystore.Service,
		Dir:     cfg.KeyDir(),
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	a.store = store
	a.keys = security.NewKeyCustodian(store, cfg.Keystore.Account, a.log)

	path := a.recordPath()
	if !a.flags.ephemeral {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	records, err := storage.OpenRecordStore(storage.RecordOptions{
		Backend:  cfg.Storage.Backend,
		Path:     path,
		InMemory: a.flags.ephemeral,
		Log:      a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("record store: %w", err)
	}

	v, err := storage.OpenVault(storage.Options{
		Records:   records,
		Keys:      a.keys,
		RecordKey: cfg.Storage.RecordKey,
		LegacyKey: cfg.Storage.LegacyKey,
		Log:       a.log,
	})
	if err != nil {
		records.Close()
		return nil, err
	}
	a.vault = v
	return v, nil
}

// recordPath is the configured record location or the backend default.
func (a *app) recordPath() string {
	if a.cfg.Storage.Path != "" {
		return a.cfg.Storage.Path
	}
	return storage.DefaultRecordPath(a.cfg.DataDir, a.cfg.Storage.Backend)
}

// ollamaClient returns the model server client.
func (a *app) ollamaClient() *ollama.Client {
	if a.client == nil {
		a.client = ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      a.cfg.Local.OllamaURL,
			Timeout:      a.cfg.Timeout(),
			DefaultModel: a.cfg.Local.OllamaModel,
		})
	}
	return a.client
}

// segmenter builds a segmenter from the configured thresholds.
func (a *app) segmenter() *thinking.Segmenter {
	table := thinking.DefaultTable()
	if n := a.cfg.Segmenter.MinFallbackLength; n > 0 {
		table.MinFallbackLength = n
	}
	if n := a.cfg.Segmenter.MinReasoningLength; n > 0 {
		table.MinReasoningLength = n
	}
	return thinking.New(table)
}

// session builds a chat session over the vault.
func (a *app) session(modelName string) (*chat.Session, error) {
	v, err := a.openVault()
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = a.cfg.Local.OllamaModel
	}
	return chat.NewSession(chat.Options{
		Vault:     v,
		Generator: a.ollamaClient(),
		Segmenter: a.segmenter(),
		Model:     modelName,
		Log:       a.log,
	}), nil
}

func (a *app) close() error {
	if a.keys != nil {
		a.keys.Forget()
	}
	if a.vault == nil {
		return nil
	}
	err := a.vault.Close()
	a.vault = nil
	return err
}

// =============================================================================
// ID RESOLUTION
// =============================================================================

var errAmbiguousID = errors.New("ambiguous conversation id")

// resolveID accepts a full id or a unique prefix of one.
func resolveID(v *storage.Vault, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("%w: empty id", storage.ErrConversationNotFound)
	}

	var matches []string
	for _, c := range v.Conversations() {
		if c.ID == arg {
			return c.ID, nil
		}
		if strings.HasPrefix(c.ID, arg) {
			matches = append(matches, c.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", storage.ErrConversationNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %d conversations", errAmbiguousID, arg, len(matches))
	}
}
