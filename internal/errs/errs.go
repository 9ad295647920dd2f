// Package errs provides tagged error kinds shared by the engine, the fill monitor and the exchange clients.
package errs

import (
	"errors"
	"strings"
)

// Kind identifies an error category callers branch on.
type Kind string

const (
	// KindValidation marks malformed input, never retried.
	KindValidation Kind = "validation"
	// KindNotFound marks a missing resource.
	KindNotFound Kind = "not_found"
	// KindExchange marks a request the exchange accepted but rejected semantically.
	KindExchange Kind = "exchange"
	// KindTransport marks connectivity failures.
	KindTransport Kind = "transport"
	// KindStateCorrupt marks persisted state that cannot be parsed.
	KindStateCorrupt Kind = "state_corrupt"
)

// E is an error tagged with a Kind.
type E struct {
	Kind    Kind
	Op      string
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error of the given kind.
func New(kind Kind, op string, opts ...Option) *E {
	e := &E{Kind: kind, Op: strings.TrimSpace(op)}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *E) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// KindOf returns the kind of the first tagged error in the chain, or "" when none.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Validation(op, message string) *E {
	return New(KindValidation, op, WithMessage(message))
}

func NotFound(op, message string, cause error) *E {
	return New(KindNotFound, op, WithMessage(message), WithCause(cause))
}

func Exchange(op, message string) *E {
	return New(KindExchange, op, WithMessage(message))
}

func Transport(op string, cause error) *E {
	return New(KindTransport, op, WithCause(cause))
}

func StateCorrupt(op string, cause error) *E {
	return New(KindStateCorrupt, op, WithCause(cause))
}
