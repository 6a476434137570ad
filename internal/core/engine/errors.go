package engine

import (
	"context"
	"errors"
	"fmt"

	"docengine/internal/core/apperror"
)

// ErrorKind is the engine-independent error class.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Error is the normalized error returned by every engine.
type Error struct {
	Kind    ErrorKind
	Engine  Name
	Op      Operation
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	prefix := e.Kind.String()
	if e.Engine != "" {
		prefix = string(e.Engine) + " " + prefix
	}
	if e.Op != "" {
		return fmt.Sprintf("%s (%s): %s", prefix, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf creates an engine error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err with kind, keeping it as the cause.
func Wrap(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of err. Non-engine errors are classified as
// Unavailable when caused by context cancellation, Unknown otherwise.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindUnknown
}

// IsNotFound reports whether err is a NotFound engine error.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsConflict reports whether err is a Conflict engine error.
func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }

// normalize makes sure err is an *Error tagged with engine and op.
func normalize(name Name, op Operation, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = Wrap(KindOf(err), err)
	}
	if e.Engine == "" {
		e.Engine = name
	}
	if e.Op == "" {
		e.Op = op
	}
	return e
}

// ToAppError maps an engine error onto the API error taxonomy.
// Errors that already are AppErrors pass through.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}
	var e *Error
	if !errors.As(err, &e) {
		e = Wrap(KindOf(err), err)
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch e.Kind {
	case KindNotFound:
		return apperror.NewNotFound(string(e.Op), msg).WithCause(err)
	case KindValidation:
		return apperror.NewValidation(msg).WithCause(err)
	case KindConflict:
		return apperror.NewConflict(msg).WithCause(err)
	case KindUnavailable:
		return apperror.NewEngineUnavailable(string(e.Engine), err)
	}
	return apperror.NewInternal(err)
}
