package adms

import (
	"errors"
	"fmt"

	"admsserver/logger"
)

// Kind classifies protocol-path failures. Every kind is answered with
// ReplyError; the kind only decides how the failure is logged.
type Kind int

const (
	KindProtocol Kind = iota + 1
	KindValidation
	KindNotFound
	KindRateLimited
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// LogLevel is the level failures of this kind are logged at.
func (k Kind) LogLevel() logger.LogLevel {
	if k == KindStorage {
		return logger.ERROR
	}
	return logger.WARN
}

// Error is a classified protocol-path failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err. Unclassified errors are storage errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}
