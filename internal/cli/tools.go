// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/secchat/internal/config"
)

// maxSplitInput bounds what split reads from stdin.
const maxSplitInput = 16 << 20

// =============================================================================
// SPLIT
// =============================================================================

// splitResult is the JSON shape of `secchat split --json`.
type splitResult struct {
	Rule      string `json:"rule"`
	Reasoning string `json:"reasoning"`
	Answer    string `json:"answer"`
}

func newSplitCmd(a *app) *cobra.Command {
	var (
		file    string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Segment model output from stdin into reasoning and answer",
		Long: `Run the thinking segmenter over text and show which rule matched. Useful
for checking how a model's output format will be stored.`,
		Example: `  ollama run deepseek-r1 "why is the sky blue" | secchat split
  secchat split --file reply.txt --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = a.in
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			raw, err := io.ReadAll(io.LimitReader(r, maxSplitInput))
			if err != nil {
				return err
			}

			split := a.segmenter().Segment(string(raw))
			if jsonOut {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(splitResult{
					Rule:      split.Rule.String(),
					Reasoning: split.Reasoning,
					Answer:    split.Answer,
				})
			}

			fmt.Fprintln(a.out, RenderLabel("Rule")+ValueStyle.Render(split.Rule.String()))
			if split.HasReasoning() {
				fmt.Fprintln(a.out, TitleStyle.Render("Reasoning"))
				fmt.Fprintln(a.out, ThinkingStyle.Render(split.Reasoning))
			}
			fmt.Fprintln(a.out, TitleStyle.Render("Answer"))
			fmt.Fprintln(a.out, split.Answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read from file instead of stdin")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// =============================================================================
// CONFIG
// =============================================================================

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return toml.NewEncoder(a.out).Encode(a.cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.out, a.cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List settable keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.Keys()
			sort.Strings(keys)
			fmt.Fprintln(a.out, strings.Join(keys, "\n"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print one value (dot notation, e.g. local.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, err := a.cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, val)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one value in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Edit the file contents, not the effective config, so flag and
			// environment overrides are not written back.
			file := config.Default()
			if _, err := os.Stat(a.cfgPath); err == nil {
				if err := config.LoadTOML(file, a.cfgPath); err != nil {
					return err
				}
			}
			if err := file.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := file.Validate(); err != nil {
				return err
			}
			if err := config.SaveTOML(file, a.cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s = %s\n", SuccessStyle.Render("Set"), args[0], args[1])
			return nil
		},
	})
	return cmd
}
