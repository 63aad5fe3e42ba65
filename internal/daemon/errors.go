package daemon

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindStart      Kind = "start"
	KindStopped    Kind = "stopped"
	KindUnexpected Kind = "unexpected"
)

// Error is the only error type returned by a Daemon. Err carries the detail
// and is nil for the kind sentinels below.
type Error struct {
	Kind Kind
	Err  error
}

var (
	ErrStartFailure = &Error{Kind: KindStart}
	ErrStopped      = &Error{Kind: KindStopped}
	ErrUnexpected   = &Error{Kind: KindUnexpected}
)

var ErrAlreadyStarted = errors.New("daemon already started")

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStopped:
		return "daemon stopped"
	case e.Err == nil:
		return "daemon " + string(e.Kind) + " error"
	case e.Kind == KindStart:
		return "daemon failed to start: " + e.Err.Error()
	default:
		return "daemon unexpected error: " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when the target is a kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

func StartFailure(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStart, Err: err}
}

// Unexpected wraps a collaborator failure. The result is always of kind
// unexpected, even when err itself wraps a daemon error.
func Unexpected(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUnexpected, Err: err}
}

func Unexpectedf(format string, args ...any) error {
	return &Error{Kind: KindUnexpected, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the taxonomy kind of err, treating foreign errors as unexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnexpected
}
