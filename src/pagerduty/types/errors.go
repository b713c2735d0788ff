package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies forwarder failures so callers can branch without
// matching on message text.
type ErrorKind string

const (
	KindInvalidEvent      ErrorKind = "InvalidEvent"
	KindMalformedSecret   ErrorKind = "MalformedSecret"
	KindServiceNotFound   ErrorKind = "ServiceNotFound"
	KindSecretStore       ErrorKind = "SecretStore"
	KindDelivery          ErrorKind = "Delivery"
	KindMalformedResponse ErrorKind = "MalformedResponse"
)

// Retryable reports whether re-invoking with the same input can succeed
// without an operator fixing configuration or the event.
func (k ErrorKind) Retryable() bool {
	return k == KindDelivery || k == KindSecretStore
}

// Error is the single error type returned by every forwarder stage.
type Error struct {
	Kind    ErrorKind
	Message string
	// Fields lists offending field names for InvalidEvent and MalformedSecret.
	Fields []string
	// StatusCode is the upstream HTTP status for Delivery errors, 0 otherwise.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

var (
	ErrInvalidEvent      = &Error{Kind: KindInvalidEvent}
	ErrMalformedSecret   = &Error{Kind: KindMalformedSecret}
	ErrServiceNotFound   = &Error{Kind: KindServiceNotFound}
	ErrSecretStore       = &Error{Kind: KindSecretStore}
	ErrDelivery          = &Error{Kind: KindDelivery}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
)

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// did not originate in the forwarder.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func InvalidEventError(message string, fields ...string) *Error {
	return &Error{Kind: KindInvalidEvent, Message: message, Fields: fields}
}

func MalformedSecretError(message string, cause error, fields ...string) *Error {
	return &Error{Kind: KindMalformedSecret, Message: message, Fields: fields, Err: cause}
}

func ServiceNotFoundError(serviceKey string) *Error {
	return &Error{Kind: KindServiceNotFound, Message: fmt.Sprintf("no routing configuration for service key %q", serviceKey)}
}

func SecretStoreError(secretName string, cause error) *Error {
	return &Error{Kind: KindSecretStore, Message: fmt.Sprintf("failed to read secret %q", secretName), Err: cause}
}

func DeliveryError(message string, statusCode int, cause error) *Error {
	return &Error{Kind: KindDelivery, Message: message, StatusCode: statusCode, Err: cause}
}

func MalformedResponseError(message string, cause error) *Error {
	return &Error{Kind: KindMalformedResponse, Message: message, Err: cause}
}
