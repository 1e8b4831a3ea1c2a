// Package errs defines the stable error kinds shared by every subsystem of
// the gateway. Components wrap lower-level failures into *Error so callers
// can branch on Kind with errors.Is/errors.As without parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable, comparable error category.
type Kind string

const (
	KindConnection       Kind = "connection"
	KindPublish          Kind = "publish"
	KindSubscribe        Kind = "subscribe"
	KindConsumer         Kind = "consumer"
	KindStream           Kind = "stream"
	KindAck              Kind = "ack"
	KindTimeout          Kind = "timeout"
	KindConfig           Kind = "config"
	KindProvider         Kind = "provider"
	KindSchemaValidation Kind = "schema_validation"
	KindNotFound         Kind = "not_found"
	KindSerialization    Kind = "serialization"
	KindTee              Kind = "tee"
	KindChannel          Kind = "channel"
	KindPrivacy          Kind = "privacy"
	KindRuntime          Kind = "runtime"
)

// Error is the wrapped error type every component returns. It never carries
// a stack trace — the pack's style is plain %w chaining, not a tracing
// error framework.
type Error struct {
	Kind    Kind
	Message string
	// EventType/Version are only populated for KindSchemaValidation.
	EventType string
	Version   int
	err       error
}

func (e *Error) Error() string {
	if e.EventType != "" {
		return fmt.Sprintf("%s: %s (event_type=%s version=%d)", e.Kind, e.Message, e.EventType, e.Version)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Is lets errors.Is(err, errs.New(KindTimeout, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error wrapping cause, formatting message the way the
// teacher's fmt.Errorf("...: %w", err) chains read.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, err: cause}
}

// SchemaValidation builds the one Kind that carries structured fields.
func SchemaValidation(eventType string, version int, reason string) *Error {
	return &Error{Kind: KindSchemaValidation, Message: reason, EventType: eventType, Version: version}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
