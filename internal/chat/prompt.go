package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/apperr"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/executor"
)

// SystemPrompt is injected at index 0 of every new transcript.
const SystemPrompt = "You are a helpful AI assistant running in the user's terminal. \n" +
	"You can help with general tasks and system administration.\n" +
	"If you need to run a terminal command to help the user (e.g., checking system status, logs, or performing a task), \n" +
	"wrap the command in this specific tag: [RUN: command_here].\n" +
	"When you provide a command, explain what it does first.\n" +
	`Example: To list files, you would say: "You can list files using: [RUN: ls -la]"`

const deviceInfoHeader = "\n\nUser System Info:\n"

const (
	NoticeCancelled  = "_Request cancelled._"
	NoticeMissingKey = "API Key missing!"
	NoOutput         = "Done (no output)"
)

func systemPreamble(deviceInfo string) string {
	if deviceInfo == "" {
		return SystemPrompt
	}
	return SystemPrompt + deviceInfoHeader + deviceInfo
}

// commandResult renders the synthetic user message fed back after a
// command. err is the executor error, nil on a normal exit.
func commandResult(command string, res executor.Result, err error, timeout time.Duration) string {
	switch {
	case err == nil:
		out := strings.TrimSpace(res.Stdout)
		if out == "" {
			out = strings.TrimSpace(res.Stderr)
		}
		if out == "" {
			out = NoOutput
		}
		return fmt.Sprintf("COMMAND OUTPUT for \"%s\" (exit status %d):\n%s", command, res.ExitStatus, out)
	case errors.Is(err, apperr.ErrTimeout):
		return fmt.Sprintf("COMMAND TIMEOUT for \"%s\": Exceeded %d seconds", command, int(timeout/time.Second))
	case errors.Is(err, apperr.ErrCancelled):
		return fmt.Sprintf("COMMAND CANCELLED for \"%s\"", command)
	default:
		return fmt.Sprintf("COMMAND ERROR for \"%s\":\n%s", command, err.Error())
	}
}

// replyNotice is the text shown for a failed reply request.
func replyNotice(err error) string {
	switch {
	case errors.Is(err, apperr.ErrCancelled):
		return NoticeCancelled
	case errors.Is(err, apperr.ErrConfig):
		return NoticeMissingKey
	default:
		return "Error: " + err.Error()
	}
}
