// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/secchat/internal/backup"
	"github.com/jeranaias/secchat/internal/export"
	"github.com/jeranaias/secchat/internal/security"
)

// =============================================================================
// EXPORT
// =============================================================================

func newExportCmd(a *app) *cobra.Command {
	var (
		format     string
		out        string
		open       bool
		noThinking bool
	)
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a conversation as markdown, json, yaml or html",
		Long: `Write one conversation to a plaintext file. Without --out the file is
named after the conversation title in the current directory; "-" writes
to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := export.DefaultOptions()
			opts.IncludeThinking = !noThinking
			opts.OpenAfterExport = open

			exporter, err := export.New(format, opts)
			if err != nil {
				return err
			}

			v, err := a.openVault()
			if err != nil {
				return err
			}
			id, err := resolveID(v, args[0])
			if err != nil {
				return err
			}
			conv, err := v.Get(id)
			if err != nil {
				return err
			}

			if out == "-" {
				data, err := exporter.Export(&conv)
				if err != nil {
					return err
				}
				_, err = a.out.Write(data)
				return err
			}

			path, err := export.ToFile(&conv, exporter, out, opts)
			if path == "" {
				return err
			}
			fmt.Fprintln(a.errOut, SuccessStyle.Render("Exported ")+path+DimStyle.Render(" (plaintext)"))
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatMarkdown, "format: "+strings.Join(export.Formats(), ", "))
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, directory (trailing /) or - for stdout")
	cmd.Flags().BoolVar(&open, "open", false, "open the file afterwards")
	cmd.Flags().BoolVar(&noThinking, "no-thinking", false, "omit reasoning segments")
	return cmd
}

// =============================================================================
// BACKUP / RESTORE
// =============================================================================

func newBackupCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup --out FILE",
		Short: "Write a passphrase-encrypted archive of all conversations",
		Long: `Write the whole history to a portable archive. The archive key is derived
from a passphrase (PBKDF2-SHA-256), not from this installation's key, so it
can be restored on another machine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}

			pass, err := a.readPassword(a.errOut, "Passphrase: ")
			if err != nil {
				return err
			}
			again, err := a.readPassword(a.errOut, "Repeat passphrase: ")
			if err != nil {
				return err
			}
			if pass != again {
				return errors.New("passphrases do not match")
			}

			n, err := backup.ExportFile(v, out, pass, backup.Options{})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %d conversations to %s\n", SuccessStyle.Render("Backed up"), n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "archive file to write")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	var (
		in  string
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "restore --in FILE",
		Short: "Replace all conversations with the contents of an archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}

			if n := len(v.Conversations()); n > 0 && !yes {
				ok, err := a.confirmOrFail(
					fmt.Sprintf("Replace %d existing conversations?", n),
					"confirm replacing the history (use --yes)")
				if !ok {
					return err
				}
			}

			pass, err := a.readPassword(a.errOut, "Passphrase: ")
			if err != nil {
				return err
			}

			n, err := backup.RestoreFile(v, in, pass)
			if errors.Is(err, security.ErrIntegrity) {
				return fmt.Errorf("wrong passphrase or damaged archive: %w", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %d conversations from %s\n", SuccessStyle.Render("Restored"), n, in)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "archive file to read")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "replace existing history without asking")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
