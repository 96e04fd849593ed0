// Package chat drives one conversation: it sends the transcript to the
// provider, surfaces [RUN: ...] directives, runs confirmed commands and feeds
// their results back until the assistant stops proposing commands.
package chat

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/apperr"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/directive"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/executor"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/provider"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

type State int

const (
	AwaitingInput State = iota
	RequestingReply
	DirectivesPending
	ExecutingCommand
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case RequestingReply:
		return "requesting_reply"
	case DirectivesPending:
		return "directives_pending"
	case ExecutingCommand:
		return "executing_command"
	default:
		return "unknown"
	}
}

type Store interface {
	Load() transcript.Transcript
	Save(t transcript.Transcript, limit int)
	Clear()
}

type Adapter interface {
	Send(ctx context.Context, cfg provider.Config, messages transcript.Transcript) (string, error)
}

type Executor interface {
	Run(ctx context.Context, command string, timeout time.Duration) (executor.Result, error)
}

// Settings is read fresh on every call so edits apply without a restart.
type Settings interface {
	ProviderConfig() provider.Config
	HistoryLimit() int
	SendDeviceInfo() bool
	CommandTimeout() time.Duration
}

// View renders the conversation. Its methods are called without the session
// lock held, from whichever goroutine completed the operation.
type View interface {
	// Message shows a user or assistant message appended to the transcript.
	Message(msg transcript.Message)
	// Directives offers the pending commands of an assistant message.
	Directives(messageID string, commands []string)
	// Notice shows text that is not part of the transcript.
	Notice(text string)
	// Reset clears the rendered conversation.
	Reset()
}

type Deps struct {
	Store      Store
	Adapter    Adapter
	Executor   Executor
	Settings   Settings
	DeviceInfo func(ctx context.Context) string
	View       View
	Logger     logrus.FieldLogger
}

type commandRun struct {
	cancel     context.CancelFunc
	done       chan struct{}
	superseded bool
}

// Session owns the transcript of one chat. At most one reply request and one
// command run are outstanding at a time.
type Session struct {
	deps Deps
	log  logrus.FieldLogger

	mu          sync.Mutex
	transcript  transcript.Transcript
	state       State
	generation  uint64
	replyCancel context.CancelFunc
	cmd         *commandRun
}

func New(ctx context.Context, deps Deps) *Session {
	assert.Assert(ctx, deps.Store != nil, "chat store should not be nil")
	assert.Assert(ctx, deps.Adapter != nil, "chat adapter should not be nil")
	assert.Assert(ctx, deps.Executor != nil, "chat executor should not be nil")
	assert.Assert(ctx, deps.Settings != nil, "chat settings should not be nil")
	assert.Assert(ctx, deps.View != nil, "chat view should not be nil")

	if deps.DeviceInfo == nil {
		deps.DeviceInfo = func(context.Context) string { return "" }
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	return &Session{
		deps: deps,
		log:  deps.Logger.WithField("component", "chat"),
	}
}

// Resume loads the persisted transcript and renders it. Directives that were
// never run are offered again.
func (s *Session) Resume() {
	loaded := s.deps.Store.Load()
	shown := loaded.Clone()

	s.mu.Lock()
	if s.busyLocked() {
		s.mu.Unlock()
		return
	}
	s.transcript = loaded
	s.state = AwaitingInput
	var pending []string
	var lastID string
	if n := len(shown); n > 0 && shown[n-1].Role == transcript.RoleAssistant {
		lastID = shown[n-1].ID
		pending = pendingOf(shown[n-1])
		if len(pending) > 0 {
			s.state = DirectivesPending
		}
	}
	s.mu.Unlock()

	s.log.WithField("messages", len(shown)).Debug("transcript resumed")
	for _, msg := range shown.ChatMessages() {
		s.deps.View.Message(msg)
	}
	if len(pending) > 0 {
		s.deps.View.Directives(lastID, pending)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the current transcript.
func (s *Session) Transcript() transcript.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Clone()
}

// PostUserMessage appends text as a user turn and requests a reply. Blank
// input is ignored. The first turn of a session injects the system preamble.
func (s *Session) PostUserMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	if err := s.busyErrLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	needPreamble := !s.transcript.HasSystem()
	s.mu.Unlock()

	var preamble string
	if needPreamble {
		info := ""
		if s.deps.Settings.SendDeviceInfo() {
			info = s.deps.DeviceInfo(ctx)
		}
		preamble = systemPreamble(info)
	}

	s.mu.Lock()
	if err := s.busyErrLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if needPreamble && !s.transcript.HasSystem() {
		system := transcript.NewMessage(transcript.RoleSystem, preamble)
		s.transcript = slices.Insert(s.transcript, 0, system)
	}
	msg := transcript.NewMessage(transcript.RoleUser, text)
	s.transcript = append(s.transcript, msg)
	req := s.beginReplyLocked(ctx)
	s.mu.Unlock()

	s.deps.View.Message(msg)
	return s.awaitReply(req)
}

// RequestReply sends the transcript as it stands.
func (s *Session) RequestReply(ctx context.Context) error {
	s.mu.Lock()
	if err := s.busyErrLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	req := s.beginReplyLocked(ctx)
	s.mu.Unlock()

	return s.awaitReply(req)
}

type replyRequest struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	messages   transcript.Transcript
}

func (s *Session) beginReplyLocked(ctx context.Context) replyRequest {
	rctx, cancel := context.WithCancel(ctx)
	s.replyCancel = cancel
	s.state = RequestingReply
	return replyRequest{
		ctx:        rctx,
		cancel:     cancel,
		generation: s.generation,
		messages:   s.transcript.Clone(),
	}
}

func (s *Session) awaitReply(req replyRequest) error {
	defer req.cancel()

	reply, err := s.deps.Adapter.Send(req.ctx, s.deps.Settings.ProviderConfig(), req.messages)

	s.mu.Lock()
	if req.generation != s.generation {
		s.mu.Unlock()
		s.log.Debug("discarding reply from a previous chat")
		return apperr.Cancelled("request")
	}
	s.replyCancel = nil

	if err != nil {
		s.state = AwaitingInput
		s.mu.Unlock()
		s.log.WithError(err).Warn("reply request failed")
		s.deps.View.Notice(replyNotice(err))
		return err
	}

	msg := transcript.NewMessage(transcript.RoleAssistant, reply)
	s.transcript = append(s.transcript, msg)
	s.deps.Store.Save(s.transcript.Clone(), s.deps.Settings.HistoryLimit())
	pending := pendingOf(msg)
	if len(pending) > 0 {
		s.state = DirectivesPending
	} else {
		s.state = AwaitingInput
	}
	s.mu.Unlock()

	s.deps.View.Message(msg)
	if len(pending) > 0 {
		s.deps.View.Directives(msg.ID, pending)
	}
	return nil
}

// ConfirmDirective runs command, a pending directive of the assistant message
// messageID, feeds the result back and requests the follow-up reply. A command
// already running is cancelled first and its result dropped.
func (s *Session) ConfirmDirective(ctx context.Context, command, messageID string) error {
	s.mu.Lock()
	for s.cmd != nil {
		prev := s.cmd
		prev.superseded = true
		prev.cancel()
		s.mu.Unlock()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return apperr.Cancelled("command")
		}
		s.mu.Lock()
	}
	if s.replyCancel != nil {
		s.mu.Unlock()
		return apperr.Busy("reply request")
	}
	if !s.isPendingLocked(command, messageID) {
		s.mu.Unlock()
		return apperr.NoDirective(command, messageID)
	}

	cctx, cancel := context.WithCancel(ctx)
	run := &commandRun{cancel: cancel, done: make(chan struct{})}
	s.cmd = run
	s.state = ExecutingCommand
	generation := s.generation
	s.mu.Unlock()

	timeout := s.deps.Settings.CommandTimeout()
	res, runErr := s.deps.Executor.Run(cctx, command, timeout)
	cancel()

	s.mu.Lock()
	if s.cmd == run {
		s.cmd = nil
	}
	close(run.done)
	if generation != s.generation || run.superseded {
		s.mu.Unlock()
		s.log.WithField("command", command).Debug("discarding result of a superseded command")
		return apperr.Cancelled("command")
	}

	result := transcript.NewMessage(transcript.RoleUser, commandResult(command, res, runErr, timeout))
	s.transcript = append(s.transcript, result)
	if i := s.transcript.Index(messageID); i >= 0 {
		s.transcript[i].MarkExecuted(command)
	}
	s.deps.Store.Save(s.transcript.Clone(), s.deps.Settings.HistoryLimit())
	req := s.beginReplyLocked(ctx)
	s.mu.Unlock()

	if runErr != nil {
		s.log.WithError(runErr).WithField("command", command).Info("command did not complete")
	}
	s.deps.View.Message(result)
	return s.awaitReply(req)
}

// NewChat cancels outstanding work, clears the persisted transcript and
// starts over. Late results of the cancelled operations are dropped.
func (s *Session) NewChat() {
	s.mu.Lock()
	s.generation++
	if s.replyCancel != nil {
		s.replyCancel()
		s.replyCancel = nil
	}
	if s.cmd != nil {
		s.cmd.superseded = true
		s.cmd.cancel()
		s.cmd = nil
	}
	s.transcript = nil
	s.state = AwaitingInput
	s.deps.Store.Clear()
	s.mu.Unlock()

	s.log.Info("new chat started")
	s.deps.View.Reset()
}

// CancelReply cancels the outstanding reply request, if any.
func (s *Session) CancelReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replyCancel == nil {
		return false
	}
	s.replyCancel()
	return true
}

// CancelCommand cancels the running command, if any. Its result is still fed
// back to the assistant.
func (s *Session) CancelCommand() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return false
	}
	s.cmd.cancel()
	return true
}

func (s *Session) busyLocked() bool {
	return s.replyCancel != nil || s.cmd != nil
}

func (s *Session) busyErrLocked() error {
	switch {
	case s.replyCancel != nil:
		return apperr.Busy("reply request")
	case s.cmd != nil:
		return apperr.Busy("command execution")
	default:
		return nil
	}
}

func (s *Session) isPendingLocked(command, messageID string) bool {
	i := s.transcript.Index(messageID)
	if i < 0 || s.transcript[i].Role != transcript.RoleAssistant {
		return false
	}
	return slices.Contains(pendingOf(s.transcript[i]), command)
}

func pendingOf(msg transcript.Message) []string {
	return slices.Collect(directive.Pending(msg))
}

