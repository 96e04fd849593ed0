// Package apperr defines the error kinds surfaced by the assistant core.
//
// Every error is built with errbuilder so it carries a code and message, and
// every error matches exactly one kind sentinel with errors.Is.
package apperr

import (
	"errors"
	"fmt"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
)

var (
	ErrConfig    = errors.New("config error")
	ErrProvider  = errors.New("provider error")
	ErrParse     = errors.New("parse error")
	ErrCancelled = errors.New("cancelled")
	ErrTimeout   = errors.New("timed out")
	ErrSpawn     = errors.New("spawn error")
	ErrBusy      = errors.New("operation already in progress")
	ErrNotFound  = errors.New("not found")
)

// Error is a classified error. Kind is one of the sentinels above.
type Error struct {
	Kind error
	// StatusCode and Body are only set for provider errors.
	StatusCode int
	Body       string

	built error
}

func (e *Error) Error() string {
	return e.built.Error()
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.built}
}

func newError(kind error, built error) *Error {
	return &Error{Kind: kind, built: built}
}

func Config(msg string) error {
	return newError(ErrConfig, errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg))
}

// InvalidConfig reports a settings source that could not be read.
func InvalidConfig(source string, cause error) error {
	return newError(ErrConfig, errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("invalid configuration in %s", source)).
		WithCause(cause))
}

// Provider reports a non-success HTTP status together with the raw body.
func Provider(provider string, status int, body string) error {
	e := newError(ErrProvider, errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s Error: %d - %s", provider, status, body)))
	e.StatusCode = status
	e.Body = body
	return e
}

// UnknownProvider is a provider error raised before any network call.
func UnknownProvider(name string) error {
	return newError(ErrProvider, errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("Invalid provider %q", name)))
}

// Transport wraps a request that never produced an HTTP status.
func Transport(provider string, cause error) error {
	return newError(ErrProvider, errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s request failed", provider)).
		WithCause(cause))
}

func Parse(provider string, cause error) error {
	return newError(ErrParse, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("Failed to parse %s response", provider)).
		WithCause(cause))
}

func Cancelled(what string) error {
	return newError(ErrCancelled, errbuilder.New().
		WithCode(errbuilder.CodeCanceled).
		WithMsg(fmt.Sprintf("%s cancelled", what)))
}

func Timeout(command string, seconds int) error {
	return newError(ErrTimeout, errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(fmt.Sprintf("command %q exceeded %ds limit", command, seconds)))
}

func Spawn(command string, cause error) error {
	return newError(ErrSpawn, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("failed to start %q", command)).
		WithCause(cause))
}

func Busy(what string) error {
	return newError(ErrBusy, errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("%s already in progress", what)))
}

// NoDirective reports a confirmation for a command that is not pending on
// the referenced message.
func NoDirective(command, messageID string) error {
	return newError(ErrNotFound, errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("no pending directive %q on message %s", command, messageID)))
}

// ProviderStatus returns the HTTP status carried by a provider error.
func ProviderStatus(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrProvider && e.StatusCode != 0 {
		return e.StatusCode, true
	}
	return 0, false
}
