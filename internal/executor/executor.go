// Package executor runs assistant-proposed shell commands as supervised
// child processes.
//
// Each run spawns one process, reads stdout and stderr concurrently line by
// line, and ends in exactly one terminal state: completed, timed out,
// cancelled, or failed.
package executor

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/apperr"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultWaitDelay = 2 * time.Second
)

var errDeadline = errors.New("command deadline exceeded")

type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateTimedOut
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Execution describes one running command.
type Execution struct {
	ID         string
	Command    string
	Argv       []string
	Privileged bool
	PID        int
	StartedAt  time.Time
	Timeout    time.Duration
}

type Result struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Observer receives progress for each execution. Line is called from the
// stdout and stderr readers, which run concurrently.
type Observer interface {
	Started(exe Execution)
	Line(exe Execution, stream Stream, line string)
	Finished(exe Execution, state State)
}

type nopObserver struct{}

func (nopObserver) Started(Execution)              {}
func (nopObserver) Line(Execution, Stream, string) {}
func (nopObserver) Finished(Execution, State)      {}

type Executor struct {
	logger    logrus.FieldLogger
	observer  Observer
	waitDelay time.Duration
}

type Option func(*Executor)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Executor) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithWaitDelay bounds how long output pipes may stay open after the process
// exits or is signalled.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) {
		e.waitDelay = d
	}
}

func New(opts ...Option) *Executor {
	e := &Executor{
		logger:    logrus.StandardLogger(),
		observer:  nopObserver{},
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("component", "executor")
	return e
}

// Run executes command and waits for it to finish, time out, or be cancelled
// through ctx. A non-positive timeout selects DefaultTimeout.
func (e *Executor) Run(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	argv, privileged, err := Prepare(command)
	if err != nil {
		return Result{}, apperr.Spawn(command, err)
	}
	if ctx.Err() != nil {
		return Result{}, apperr.Cancelled("command")
	}

	runCtx, cancel := context.WithTimeoutCause(ctx, timeout, errDeadline)
	defer cancel()

	var signalled atomic.Bool
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Cancel = func() error {
		err := cmd.Process.Signal(syscall.SIGTERM)
		if err == nil {
			signalled.Store(true)
		}
		return err
	}
	cmd.WaitDelay = e.waitDelay

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		return Result{}, apperr.Spawn(command, err)
	}

	exe := Execution{
		ID:         uuid.NewString(),
		Command:    command,
		Argv:       argv,
		Privileged: privileged,
		PID:        cmd.Process.Pid,
		StartedAt:  time.Now(),
		Timeout:    timeout,
	}
	log := e.logger.WithFields(logrus.Fields{
		"execution": exe.ID,
		"pid":       exe.PID,
		"command":   command,
	})
	log.WithField("privileged", privileged).Info("command started")
	e.observer.Started(exe)

	var stdout, stderr strings.Builder
	var readers errgroup.Group
	readers.Go(func() error { return e.collect(exe, Stdout, outR, &stdout) })
	readers.Go(func() error { return e.collect(exe, Stderr, errR, &stderr) })

	waitErr := cmd.Wait()
	outW.Close()
	errW.Close()
	if err := readers.Wait(); err != nil {
		log.WithError(err).Warn("reading command output failed")
	}

	state, result, err := settle(ctx, runCtx, waitErr, signalled.Load())
	switch state {
	case StateCompleted:
		result.Stdout = stdout.String()
		result.Stderr = stderr.String()
	case StateTimedOut:
		err = apperr.Timeout(command, int(timeout/time.Second))
	case StateCancelled:
		err = apperr.Cancelled("command")
	default:
		err = apperr.Spawn(command, err)
	}

	log.WithFields(logrus.Fields{
		"state":    state.String(),
		"exit":     result.ExitStatus,
		"duration": time.Since(exe.StartedAt).String(),
	}).Info("command finished")
	e.observer.Finished(exe, state)

	if state != StateCompleted {
		return Result{}, err
	}
	return result, nil
}

// settle maps the outcome of Wait onto a terminal state. signalled reports
// whether the process was sent SIGTERM; a process that exited before that is
// completed even if the deadline fired meanwhile. Cancellation of the
// caller's context wins over the timeout when both have fired.
func settle(parent, runCtx context.Context, waitErr error, signalled bool) (State, Result, error) {
	if signalled && runCtx.Err() != nil {
		if parent.Err() != nil {
			return StateCancelled, Result{}, parent.Err()
		}
		if errors.Is(context.Cause(runCtx), errDeadline) {
			return StateTimedOut, Result{}, errDeadline
		}
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil, errors.Is(waitErr, exec.ErrWaitDelay):
		return StateCompleted, Result{ExitStatus: 0}, nil
	case errors.As(waitErr, &exitErr):
		return StateCompleted, Result{ExitStatus: exitErr.ExitCode()}, nil
	default:
		return StateFailed, Result{}, waitErr
	}
}

func (e *Executor) collect(exe Execution, stream Stream, r io.Reader, buf *strings.Builder) error {
	lr := newLineReader(r)
	for line := range lr.Lines() {
		buf.WriteString(line)
		buf.WriteByte('\n')
		e.observer.Line(exe, stream, line)
	}
	return lr.Err()
}
