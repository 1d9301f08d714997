// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/secchat/internal/security"
	"github.com/jeranaias/secchat/internal/thinking"
)

// statusTimeout bounds the model server probe.
const statusTimeout = 3 * time.Second

// =============================================================================
// STATUS
// =============================================================================

// StatusData is the JSON shape of `secchat status --json`.
type StatusData struct {
	Version string `json:"version"`
	Config  string `json:"config"`
	DataDir string `json:"data_dir"`

	Keystore      string `json:"keystore"`
	KeyPersistent bool   `json:"key_persistent"`

	Storage       string `json:"storage"`
	StoragePath   string `json:"storage_path"`
	RecordKey     string `json:"record_key"`
	Conversations int    `json:"conversations"`
	Migration     string `json:"migration"`
	MigrationErr  string `json:"migration_error,omitempty"`

	Segmenter string `json:"segmenter_table"`

	OllamaURL     string `json:"ollama_url"`
	Model         string `json:"model"`
	OllamaVersion string `json:"ollama_version,omitempty"`
	OllamaErr     string `json:"ollama_error,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		jsonOut bool
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show key, store and model server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			// Touch the key so Persistent reflects this process.
			key, err := a.keys.ObtainKey()
			if err != nil {
				return err
			}
			security.ZeroBytes(key)

			mig, migErr := v.Migration()
			data := StatusData{
				Version:       a.version,
				Config:        a.cfgPath,
				DataDir:       a.cfg.DataDir,
				Keystore:      security.Describe(a.store),
				KeyPersistent: a.keys.Persistent(),
				Storage:       a.cfg.Storage.Backend,
				StoragePath:   a.recordPath(),
				RecordKey:     v.Codec().RecordKey(),
				Conversations: len(v.Conversations()),
				Migration:     mig.Outcome.String(),
				Segmenter:     thinking.TableVersion,
				OllamaURL:     a.cfg.Local.OllamaURL,
				Model:         a.cfg.Local.OllamaModel,
			}
			if a.flags.ephemeral {
				data.StoragePath = "(memory)"
			}
			if migErr != nil {
				data.MigrationErr = migErr.Error()
			}
			if !offline {
				ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
				ver, err := a.ollamaClient().Version(ctx)
				cancel()
				if err != nil {
					data.OllamaErr = err.Error()
				} else {
					data.OllamaVersion = ver
				}
			}

			if jsonOut {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			}
			printStatus(a, data, offline)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the model server probe")
	return cmd
}

func printStatus(a *app, d StatusData, offline bool) {
	w := a.out
	row := func(label, value string) {
		fmt.Fprintln(w, RenderLabel(label)+ValueStyle.Render(value))
	}

	fmt.Fprintln(w, TitleStyle.Render("secchat "+d.Version))
	row("Config", d.Config)
	row("Data dir", d.DataDir)
	fmt.Fprintln(w)

	row("Keystore", d.Keystore)
	if d.KeyPersistent {
		row("Key", RenderStatus("ok")+" stored")
	} else {
		row("Key", RenderStatus("warn")+" session only, history will be unreadable after exit")
	}
	row("Encryption", "AES-256-GCM")
	fmt.Fprintln(w)

	row("Storage", d.Storage+" "+d.StoragePath)
	row("Record", d.RecordKey)
	row("Conversations", fmt.Sprint(d.Conversations))
	if d.MigrationErr != "" {
		row("Migration", RenderStatus("fail")+" "+d.MigrationErr)
	} else {
		row("Migration", d.Migration)
	}
	row("Segmenter table", "v"+d.Segmenter)
	fmt.Fprintln(w)

	row("Ollama", d.OllamaURL)
	row("Model", d.Model)
	switch {
	case offline:
		row("Server", RenderStatus("skipped"))
	case d.OllamaErr != "":
		row("Server", RenderStatus("fail")+" "+d.OllamaErr)
	default:
		row("Server", RenderStatus("ok")+" version "+d.OllamaVersion)
	}
}

// =============================================================================
// MIGRATE
// =============================================================================

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move a plaintext history into the encrypted store",
		Long: `Migration runs automatically whenever the store is opened. This command
opens the store and reports what the run did: none, skipped (already
encrypted), cleaned-up (leftover plaintext removed), empty-legacy or
migrated. On failure the plaintext record is kept and the error shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			res, err := v.Migration()
			if err != nil {
				return fmt.Errorf("migration failed, plaintext history kept: %w", err)
			}
			msg := res.Outcome.String()
			if res.Conversations > 0 {
				msg = fmt.Sprintf("%s (%d conversations)", msg, res.Conversations)
			}
			fmt.Fprintln(a.out, RenderStatus("ok")+" migration: "+msg)
			return nil
		},
	}
}

// =============================================================================
// MODELS
// =============================================================================

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models installed on the Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := a.ollamaClient().ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(a.out, DimStyle.Render("No models installed. Try: ollama pull "+a.cfg.Local.OllamaModel))
				return nil
			}
			rows := make([][]string, 0, len(models))
			for _, m := range models {
				mark := ""
				if m.Name == a.cfg.Local.OllamaModel {
					mark = "*"
				}
				rows = append(rows, []string{mark, m.Name, m.FormatSize(), m.Details.ParameterSize})
			}
			fmt.Fprintln(a.out, renderTable([]column{
				{Title: "", Width: 1},
				{Title: "NAME"},
				{Title: "SIZE", Width: 9},
				{Title: "PARAMS", Width: 8},
			}, rows, terminalWidth(a.out)))
			return nil
		},
	}
}
