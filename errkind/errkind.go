// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package errkind implements the error taxonomy of §7: a closed set of
// error kinds shared by the edit/diff engine, the lock manager and the
// event-delivery state machine, on top of github.com/danos/mgmterror
// (the structured NETCONF-style error type configd itself returns over
// the wire).
package errkind

import (
	"fmt"

	"github.com/danos/mgmterror"
)

// Kind is the taxonomy from §7. It is never exposed on the wire directly
// (mgmterror.MgmtErrorList is); Classify recovers it from a returned
// error for callers (tests, retry logic) that need to branch on kind.
type Kind int

const (
	InvalidArg Kind = iota
	NotFound
	Exists
	ValidationFailed
	Unauthorized
	Locked
	CallbackFailed
	OperationFailed
	Sys
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "INVALID_ARG"
	case NotFound:
		return "NOT_FOUND"
	case Exists:
		return "EXISTS"
	case ValidationFailed:
		return "VALIDATION_FAILED"
	case Unauthorized:
		return "UNAUTHORIZED"
	case Locked:
		return "LOCKED"
	case CallbackFailed:
		return "CALLBACK_FAILED"
	case OperationFailed:
		return "OPERATION_FAILED"
	case Sys:
		return "SYS"
	case Internal:
		return "INTERNAL"
	}
	return "UNKNOWN"
}

// kindError wraps an mgmterror error with its taxonomy Kind and, for
// CallbackFailed, the subscriber's opaque error-data blob.
type kindError struct {
	kind      Kind
	path      string
	errorData []byte
	cause     error
}

func (e *kindError) Error() string {
	if e.path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.kind, e.cause.Error(), e.path)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.cause.Error())
}

func (e *kindError) Unwrap() error { return e.cause }

// New builds a taxonomy error for kind, formatting msg like fmt.Errorf
// and mapping it onto the matching mgmterror constructor so that callers
// serializing to NETCONF/RESTCONF peers get a structured error.
func New(kind Kind, path string, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var cause error
	switch kind {
	case InvalidArg:
		e := mgmterror.NewInvalidValueApplicationError()
		e.Message = msg
		cause = e
	case NotFound:
		e := mgmterror.NewUnknownElementApplicationError(path)
		e.Message = msg
		cause = e
	case Exists:
		cause = mgmterror.NewDataExistsError(path)
	case ValidationFailed:
		e := mgmterror.NewOperationFailedApplicationError()
		e.Message = msg
		cause = e
	case Unauthorized:
		cause = mgmterror.NewAccessDeniedApplicationError()
	case Locked:
		e := mgmterror.NewLockDeniedError(msg)
		cause = e
	case OperationFailed:
		e := mgmterror.NewOperationFailedApplicationError()
		e.Message = msg
		cause = e
	case Sys:
		e := mgmterror.NewOperationFailedApplicationError()
		e.Message = "system error: " + msg
		cause = e
	case Internal:
		e := mgmterror.NewOperationFailedApplicationError()
		e.Message = "internal error: " + msg
		cause = e
	default:
		e := mgmterror.NewOperationFailedApplicationError()
		e.Message = msg
		cause = e
	}
	return &kindError{kind: kind, path: path, cause: cause}
}

// NewCallbackFailed wraps a subscriber-returned error together with its
// opaque error-data blob, per §7's CALLBACK_FAILED propagation policy.
func NewCallbackFailed(subErr error, errorData []byte) error {
	return &kindError{kind: CallbackFailed, errorData: errorData, cause: subErr}
}

// Classify recovers the taxonomy Kind of an error produced by New or
// NewCallbackFailed; ok is false for errors that did not originate here
// (in which case callers should treat it as Internal/Sys as appropriate).
func Classify(err error) (Kind, bool) {
	ke, ok := err.(*kindError)
	if !ok {
		return Internal, false
	}
	return ke.kind, true
}

// ErrorData returns the opaque error-data blob attached to a
// CALLBACK_FAILED error, or nil.
func ErrorData(err error) []byte {
	ke, ok := err.(*kindError)
	if !ok {
		return nil
	}
	return ke.errorData
}

// Is reports whether err was produced by this package with the given
// Kind; convenience wrapper around Classify for call sites that only
// care about one kind.
func Is(err error, kind Kind) bool {
	k, ok := Classify(err)
	return ok && k == kind
}
