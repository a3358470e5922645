package fulfillment

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies fulfillment errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidStore
	KindInvalidOrder
	KindNotFound
	KindOperationNotPermitted
	KindInsufficientInventory
	KindMissingArguments
	// KindUnavailable covers storage timeouts, lock contention and throttling.
	// It is the only retryable kind.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidStore:
		return "InvalidStore"
	case KindInvalidOrder:
		return "InvalidOrder"
	case KindNotFound:
		return "NotFound"
	case KindOperationNotPermitted:
		return "OrderOperationNotPermitted"
	case KindInsufficientInventory:
		return "InsufficientInventory"
	case KindMissingArguments:
		return "MissingArguments"
	case KindUnavailable:
		return "Unavailable"
	}
	return "Unknown"
}

// Error is the typed error returned by every fulfillment operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Store sentinels. Store implementations return (or wrap) these; the service
// translates them into typed errors.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conditional write failed")
	ErrLocked   = errors.New("entity locked")
	ErrFloor    = errors.New("counter would drop below zero")

	// ErrUnavailable marks transient storage failures (throttling, timeouts,
	// transaction conflicts).
	ErrUnavailable = errors.New("storage unavailable")
)

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a fulfillment error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the caller may safely retry. Business errors
// are never retryable.
func IsRetryable(err error) bool {
	return IsKind(err, KindUnavailable)
}

// wrap attaches op to err, translating store sentinels and context errors.
// Errors that already carry a kind keep it.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Op == "" {
			fe.Op = op
		}
		return fe
	}
	kind := KindUnknown
	switch {
	case errors.Is(err, ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, ErrFloor):
		kind = KindInsufficientInventory
	case errors.Is(err, ErrConflict):
		kind = KindOperationNotPermitted
	case errors.Is(err, ErrLocked),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = KindUnavailable
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
