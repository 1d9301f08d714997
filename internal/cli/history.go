// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/secchat/internal/model"
)

// shortIDLen is how much of an id list prints; show and friends accept
// any unique prefix.
const shortIDLen = 8

// =============================================================================
// LIST
// =============================================================================

// listEntry is the JSON shape of one list row.
type listEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Model    string `json:"model,omitempty"`
	Messages int    `json:"messages"`
	Updated  string `json:"updated,omitempty"`
}

func newListCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			convs := v.Conversations()

			if jsonOut {
				entries := make([]listEntry, 0, len(convs))
				for _, c := range convs {
					e := listEntry{ID: c.ID, Title: c.DisplayTitle(), Model: c.Model, Messages: c.MessageCount()}
					if !c.UpdatedAt.IsZero() {
						e.Updated = c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
					}
					entries = append(entries, e)
				}
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(convs) == 0 {
				fmt.Fprintln(a.out, DimStyle.Render("No conversations yet. Start one with: secchat chat \"...\""))
				return nil
			}

			rows := make([][]string, 0, len(convs))
			for _, c := range convs {
				updated := ""
				if !c.UpdatedAt.IsZero() {
					updated = c.UpdatedAt.Local().Format("2006-01-02 15:04")
				}
				rows = append(rows, []string{
					shortID(c.ID),
					c.DisplayTitle(),
					strconv.Itoa(c.MessageCount()),
					updated,
				})
			}
			fmt.Fprintln(a.out, renderTable([]column{
				{Title: "ID", Width: shortIDLen},
				{Title: "TITLE"},
				{Title: "MSGS", Width: 4},
				{Title: "UPDATED", Width: 16},
			}, rows, terminalWidth(a.out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// =============================================================================
// SHOW
// =============================================================================

func newShowCmd(a *app) *cobra.Command {
	var showThinking bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			printConversation(a, conv, showThinking)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showThinking, "thinking", false, "include reasoning segments")
	return cmd
}

func printConversation(a *app, conv model.Conversation, showThinking bool) {
	w := a.out
	fmt.Fprintln(w, TitleStyle.Render(conv.DisplayTitle()))

	meta := []string{conv.ID}
	if conv.Model != "" {
		meta = append(meta, conv.Model)
	}
	if !conv.CreatedAt.IsZero() {
		meta = append(meta, conv.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w, DimStyle.Render(strings.Join(meta, " | ")))
	fmt.Fprintln(w, RenderSeparator())

	if conv.IsEmpty() {
		fmt.Fprintln(w, DimStyle.Render("(no messages)"))
		return
	}
	for i, msg := range conv.Messages {
		if i > 0 {
			fmt.Fprintln(w)
		}
		label := UserStyle.Render(msg.Role.DisplayName())
		if msg.Role == model.RoleAssistant {
			label = AssistantStyle.Render(msg.Role.DisplayName())
		}
		if !msg.Timestamp.IsZero() {
			label += DimStyle.Render(" " + msg.Timestamp.Local().Format("15:04:05"))
		}
		fmt.Fprintln(w, label)

		if msg.Role == model.RoleAssistant {
			printReply(w, msg, showThinking)
			if !showThinking && msg.HasThinking() {
				fmt.Fprintln(w, DimStyle.Render("(reasoning hidden, use --thinking)"))
			}
		} else {
			fmt.Fprintln(w, msg.Content)
		}
	}
}

// =============================================================================
// RENAME / DELETE
// =============================================================================

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID TITLE...",
		Short: "Change a conversation title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			id, err := resolveID(v, args[0])
			if err != nil {
				return err
			}
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return fmt.Errorf("title is empty")
			}
			if err := v.Rename(id, title); err != nil {
				return err
			}
			fmt.Fprintln(a.out, SuccessStyle.Render("Renamed ")+shortID(id)+" to "+title)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if !yes {
				ok, err := a.confirmOrFail(
					fmt.Sprintf("Delete %q (%d messages)?", conv.DisplayTitle(), conv.MessageCount()),
					"confirm deletion (use --yes)")
				if !ok {
					return err
				}
			}

			if err := v.Delete(id); err != nil {
				return err
			}
			fmt.Fprintln(a.out, SuccessStyle.Render("Deleted ")+shortID(id))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
