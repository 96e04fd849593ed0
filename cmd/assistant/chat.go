package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/apperr"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/chat"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

const chatHelp = `Commands:
  /run <n>   run the n-th proposed command
  /new       start a new chat and forget the saved one
  /help      show this help
  /quit      exit
Ctrl+C while waiting cancels the running command or request.
`

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat, resuming the saved conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question without touching the saved conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			view := newTermView(cmd.OutOrStdout())
			sess := a.session(ctx, memoryStore{}, view)
			err = interruptible(sess, func() error {
				return sess.PostUserMessage(ctx, strings.Join(args, " "))
			})
			if err != nil {
				return fmt.Errorf("%w: %w", errReported, err)
			}
			return nil
		},
	}
}

func runChat(ctx context.Context, a *app, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.settings.Watch(ctx); err != nil {
		a.logger.WithError(err).Debug("settings are not watched")
	}

	view := newTermView(out)
	sess := a.session(ctx, a.store, view)

	cfg := a.settings.ProviderConfig()
	fmt.Fprintf(out, "%s %s %s\n", color.CyanString("Provider:"), cfg.Provider, cfg.Model)
	fmt.Fprintln(out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(out)
	sess.Resume()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	for _, msg := range sess.Transcript().ChatMessages() {
		if msg.Role == transcript.RoleUser && !strings.HasPrefix(msg.Content, "COMMAND ") {
			line.AppendHistory(msg.Content)
		}
	}

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		var opErr error
		switch cmd, arg, _ := strings.Cut(input, " "); cmd {
		case "/quit", "/exit", "/q":
			return nil
		case "/help", "/h":
			fmt.Fprint(out, chatHelp)
		case "/new":
			sess.NewChat()
		case "/run":
			d, err := view.directive(arg)
			if err != nil {
				fmt.Fprintln(out, color.RedString(err.Error()))
				continue
			}
			opErr = interruptible(sess, func() error {
				return sess.ConfirmDirective(ctx, d.command, d.messageID)
			})
		default:
			opErr = interruptible(sess, func() error {
				return sess.PostUserMessage(ctx, input)
			})
		}

		if errors.Is(opErr, apperr.ErrBusy) || errors.Is(opErr, apperr.ErrNotFound) {
			fmt.Fprintln(out, color.RedString(opErr.Error()))
		}
	}
}

// interruptible runs fn and turns Ctrl+C into a cancel of the running
// command, or of the reply request when no command runs.
func interruptible(sess *chat.Session, fn func() error) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sig:
				if !sess.CancelCommand() {
					sess.CancelReply()
				}
			}
		}
	}()

	return fn()
}
