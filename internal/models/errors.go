package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindTransferRejected ErrorKind = "transfer_rejected"
	KindTransferUnknown  ErrorKind = "transfer_unknown"
	KindIntegrity        ErrorKind = "integrity"
	KindInternal         ErrorKind = "internal"
)

// Error is the typed error surfaced to callers. Kind is machine-readable,
// Message is human-readable, and Status carries the current phase/status for
// conflicts so the caller can decide whether a retry makes sense.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Status  string    `json:"status,omitempty"`
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s (status=%s)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(status string, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Status: status, Message: fmt.Sprintf(format, args...)}
}

func NewTransferError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewIntegrityError marks a commitment/hash mismatch. It must never occur in
// correct operation; callers halt automated settlement for the affected entity.
func NewIntegrityError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindIntegrity, Message: fmt.Sprintf(format, args...)}
}

func NewInternalError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// KindOf unwraps err to its domain kind, defaulting to internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
