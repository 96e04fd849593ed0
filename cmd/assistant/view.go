package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/chat"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/executor"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

type pendingDirective struct {
	messageID string
	command   string
}

// termView renders a chat session and live command output to a terminal.
type termView struct {
	out io.Writer

	mu      sync.Mutex
	pending []pendingDirective
}

var (
	_ chat.View         = (*termView)(nil)
	_ executor.Observer = (*termView)(nil)
)

func newTermView(out io.Writer) *termView {
	return &termView{out: out}
}

func (v *termView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

func (v *termView) Message(msg transcript.Message) {
	switch msg.Role {
	case transcript.RoleAssistant:
		v.printf("%s %s\n\n", color.CyanString("assistant:"), msg.Content)
	case transcript.RoleUser:
		if strings.HasPrefix(msg.Content, "COMMAND ") {
			head, body, _ := strings.Cut(msg.Content, "\n")
			v.printf("%s\n", color.YellowString(head))
			if body != "" {
				v.printf("%s\n", body)
			}
			v.printf("\n")
			return
		}
		v.printf("%s %s\n", color.GreenString("you:"), msg.Content)
	}
}

func (v *termView) Directives(messageID string, commands []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = v.pending[:0]
	for i, c := range commands {
		v.pending = append(v.pending, pendingDirective{messageID: messageID, command: c})
		fmt.Fprintf(v.out, "  %s %s\n", color.MagentaString("[%d]", i+1), c)
	}
	fmt.Fprintf(v.out, "Type /run <n> to execute a command.\n\n")
}

func (v *termView) Notice(text string) {
	if text == chat.NoticeCancelled {
		v.printf("%s\n\n", color.YellowString(text))
		return
	}
	v.printf("%s\n\n", color.RedString(text))
}

func (v *termView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = nil
	fmt.Fprintln(v.out, color.CyanString("New chat started."))
}

// directive resolves the 1-based number shown next to a pending command.
func (v *termView) directive(arg string) (pendingDirective, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return pendingDirective{}, fmt.Errorf("not a command number: %q", arg)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if n < 1 || n > len(v.pending) {
		return pendingDirective{}, fmt.Errorf("no pending command %d", n)
	}
	return v.pending[n-1], nil
}

func (v *termView) Started(exe executor.Execution) {
	label := "Executing..."
	if exe.Privileged {
		label = "Authentication required..."
	}
	v.printf("%s %s\n", color.HiBlackString(label), exe.Command)
}

func (v *termView) Line(_ executor.Execution, stream executor.Stream, line string) {
	if stream == executor.Stderr {
		v.printf("%s %s\n", color.HiBlackString("│"), color.RedString(line))
		return
	}
	v.printf("%s %s\n", color.HiBlackString("│"), line)
}

func (v *termView) Finished(exe executor.Execution, state executor.State) {
	v.printf("%s\n", color.HiBlackString("└ %s", state))
}
