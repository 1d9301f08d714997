// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/secchat/internal/chat"
	"github.com/jeranaias/secchat/internal/model"
	"github.com/jeranaias/secchat/internal/ollama"
)

// =============================================================================
// CHAT
// =============================================================================

func newChatCmd(a *app) *cobra.Command {
	var (
		id           string
		modelName    string
		showThinking bool
	)
	cmd := &cobra.Command{
		Use:   "chat PROMPT...",
		Short: "Send one prompt and print the answer",
		Example: `  secchat chat "Explain AES-GCM nonces"
  secchat chat --id 3f2a "And what if a nonce repeats?"
  secchat chat --model llama3:8b --thinking "Plan a 3 day trip"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(modelName)
			if err != nil {
				return err
			}
			if id != "" {
				if id, err = resolveID(a.vault, id); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			reply, err := s.Send(ctx, id, strings.Join(args, " "))
			if reply.Conversation.ID == "" {
				return withHint(err, s.Model())
			}
			if reply.Created {
				fmt.Fprintln(a.out, DimStyle.Render("conversation "+reply.Conversation.ID))
			}
			printReply(a.out, reply.Message, showThinking)
			return withHint(err, s.Model())
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "continue an existing conversation (id or unique prefix)")
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "model name (overrides config)")
	cmd.Flags().BoolVar(&showThinking, "thinking", false, "print the reasoning segment")
	return cmd
}

// withHint adds the usual fix to model server errors.
func withHint(err error, modelName string) error {
	switch {
	case err == nil:
		return nil
	case ollama.IsNotRunning(err):
		return fmt.Errorf("%w (start it with: ollama serve)", err)
	case ollama.IsModelNotFound(err):
		return fmt.Errorf("%w (try: ollama pull %s)", err, modelName)
	case ollama.IsTimeout(err):
		return fmt.Errorf("%w (raise local.timeout_secs)", err)
	}
	return err
}

// printReply prints an assistant message: reasoning (when asked for and
// present), the answer and a one-line statistics footer.
func printReply(w io.Writer, msg model.Message, showThinking bool) {
	if showThinking && msg.HasThinking() {
		fmt.Fprintln(w, ThinkingStyle.Render(strings.TrimSpace(msg.Thinking)))
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, renderMarkdown(w, msg.Content))
	if footer := statsLine(msg); footer != "" {
		fmt.Fprintln(w, DimStyle.Render(footer))
	}
}

// statsLine summarizes timing for an assistant message.
func statsLine(msg model.Message) string {
	var parts []string
	if msg.ThinkingTime > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", msg.ThinkingTime))
	}
	if d := msg.ThinkingDetails; d != nil {
		if d.EvalCount > 0 {
			parts = append(parts, fmt.Sprintf("%d tokens", d.EvalCount))
		}
		if d.TokensPerSecond > 0 {
			parts = append(parts, fmt.Sprintf("%.1f tok/s", d.TokensPerSecond))
		}
	}
	if msg.HasThinking() {
		parts = append(parts, fmt.Sprintf("reasoning %d chars", len([]rune(msg.Thinking))))
	}
	return strings.Join(parts, " | ")
}

// =============================================================================
// REPL
// =============================================================================

// lineReader is the part of liner.State the REPL uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

func newTerminalLiner() lineReader {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	l.SetCompleter(func(line string) []string {
		var out []string
		for _, c := range replCommands {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	})
	return l
}

var replCommands = []string{"/new", "/thinking", "/id", "/last", "/reload", "/help", "/exit", "/quit"}

const replHelp = `Commands:
  /new        start a new conversation
  /thinking   toggle printing of reasoning
  /id         print the current conversation id
  /last       print the last message again
  /reload     re-read history written by another secchat
  /help       show this help
  /exit       leave (also Ctrl-D)`

func newReplCmd(a *app) *cobra.Command {
	var (
		id           string
		modelName    string
		showThinking bool
	)
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive chat with line editing and history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(modelName)
			if err != nil {
				return err
			}
			if id != "" {
				if id, err = resolveID(a.vault, id); err != nil {
					return err
				}
			}

			r := &repl{app: a, session: s, id: id, thinking: showThinking}
			return r.loop(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "continue an existing conversation")
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "model name (overrides config)")
	cmd.Flags().BoolVar(&showThinking, "thinking", false, "print reasoning segments")
	return cmd
}

type repl struct {
	app      *app
	session  *chat.Session
	id       string
	thinking bool
}

func (r *repl) loop(ctx context.Context) error {
	w := r.app.out
	lines := r.app.newLiner()
	defer lines.Close()

	fmt.Fprintln(w, TitleStyle.Render("secchat")+DimStyle.Render(" model "+r.session.Model()+", /help for commands"))

	for {
		input, err := lines.Prompt("> ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(w)
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		lines.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if r.command(input) {
				return nil
			}
			continue
		}

		reply, err := r.session.Send(ctx, r.id, input)
		if reply.Conversation.ID != "" {
			r.id = reply.Conversation.ID
			printReply(w, reply.Message, r.thinking)
		}
		if err != nil {
			fmt.Fprintln(w, ErrorStyle.Render("Error: ")+withHint(err, r.session.Model()).Error())
		}
		fmt.Fprintln(w)
	}
}

// command handles a slash command and reports whether to exit.
func (r *repl) command(input string) bool {
	w := r.app.out
	switch strings.Fields(input)[0] {
	case "/exit", "/quit":
		return true
	case "/new":
		r.id = ""
		fmt.Fprintln(w, DimStyle.Render("new conversation"))
	case "/thinking":
		r.thinking = !r.thinking
		state := "off"
		if r.thinking {
			state = "on"
		}
		fmt.Fprintln(w, DimStyle.Render("reasoning display "+state))
	case "/id":
		if r.id == "" {
			fmt.Fprintln(w, DimStyle.Render("no conversation yet"))
		} else {
			fmt.Fprintln(w, r.id)
		}
	case "/last":
		r.printLast()
	case "/reload":
		r.app.vault.Reload()
		fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("reloaded %d conversations", len(r.app.vault.Conversations()))))
		if r.id != "" {
			if _, err := r.app.vault.Get(r.id); err != nil {
				r.id = ""
				fmt.Fprintln(w, WarningStyle.Render("current conversation is gone, starting a new one"))
			}
		}
	case "/help":
		fmt.Fprintln(w, replHelp)
	default:
		fmt.Fprintln(w, WarningStyle.Render("unknown command "+input))
	}
	return false
}

func (r *repl) printLast() {
	w := r.app.out
	if r.id == "" {
		fmt.Fprintln(w, DimStyle.Render("no conversation yet"))
		return
	}
	conv, err := r.app.vault.Get(r.id)
	if err != nil {
		fmt.Fprintln(w, ErrorStyle.Render("Error: ")+err.Error())
		return
	}
	last := conv.LastMessage()
	if last == nil {
		fmt.Fprintln(w, DimStyle.Render("no messages"))
		return
	}
	if last.Role == model.RoleAssistant {
		printReply(w, *last, r.thinking)
	} else {
		fmt.Fprintln(w, last.Content)
	}
}
