package resolvetypes

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a resolution-engine error per the shared error
// taxonomy. Each kind dictates a propagation rule: InvalidArgument and
// ProtocolError abort immediately; TimeoutError and NetworkError feed a
// retry policy; StorageError always surfaces.
type ErrorKind string

const (
	KindAgentUnavailable ErrorKind = "agent_unavailable"
	KindTimeout          ErrorKind = "timeout"
	KindProtocol         ErrorKind = "protocol"
	KindNetwork          ErrorKind = "network"
	KindStorage          ErrorKind = "storage"
	KindNotFound         ErrorKind = "not_found"
	KindInvalidArgument  ErrorKind = "invalid_argument"
)

// Error wraps an underlying cause with one of the shared error kinds.
type Error struct {
	Kind     ErrorKind
	Message  string
	Deadline time.Duration // set only for KindTimeout
	Cause    error
}

func (e *Error) Error() string {
	if e.Kind == KindTimeout && e.Deadline > 0 {
		return fmt.Sprintf("%s: %s (deadline %s)", e.Kind, e.Message, e.Deadline)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, &resolvetypes.Error{Kind: resolvetypes.KindTimeout}).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func NewAgentUnavailable(msg string) error {
	return &Error{Kind: KindAgentUnavailable, Message: msg}
}

func NewTimeout(msg string, deadline time.Duration) error {
	return &Error{Kind: KindTimeout, Message: msg, Deadline: deadline}
}

func NewProtocol(msg string, cause error) error {
	return &Error{Kind: KindProtocol, Message: msg, Cause: cause}
}

func NewNetwork(msg string, cause error) error {
	return &Error{Kind: KindNetwork, Message: msg, Cause: cause}
}

func NewStorage(msg string, cause error) error {
	return &Error{Kind: KindStorage, Message: msg, Cause: cause}
}

func NewNotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NewInvalidArgument(msg string) error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

// KindOf extracts the ErrorKind from err, if err is (or wraps) an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Clamp confines a confidence score to [0,1], per the global invariant
// that every Solution-producing operation clamps before returning.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
