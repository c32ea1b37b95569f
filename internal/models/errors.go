package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-distinguishable error taxonomy surfaced at the
// API boundary.
type ErrorKind string

const (
	KindDecodeError    ErrorKind = "decode_error"
	KindNoFace         ErrorKind = "no_face_detected"
	KindMultipleFaces  ErrorKind = "multiple_faces_detected"
	KindEmbeddingError ErrorKind = "embedding_error"
	KindNotFound       ErrorKind = "not_found"
	KindTimeout        ErrorKind = "timeout"
	KindInternal       ErrorKind = "internal"
)

// Error carries an ErrorKind plus a human-readable message.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a taxonomy error without a cause.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError builds a taxonomy error around an underlying cause.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, or KindInternal when err carries
// no taxonomy information.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
