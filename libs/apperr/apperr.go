// Package apperr defines the error kinds shared by the booking and office services.
//
// Service code returns *Error values; transport code maps the Kind to a status code
// (see httpx.WriteError). Storage packages translate driver errors into these kinds so
// that constraint violations never reach clients as generic server faults.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal        Kind = "internal"
	KindValidation      Kind = "validation_error"
	KindSlotConflict    Kind = "slot_conflict"
	KindNotFound        Kind = "not_found"
	KindAlreadyResolved Kind = "already_resolved"
	KindUploadFailed    Kind = "upload_error"
	KindTransientFetch  Kind = "transient_fetch_error"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation      = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrSlotConflict    = &Error{Kind: KindSlotConflict, Message: "slot no longer available"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAlreadyResolved = &Error{Kind: KindAlreadyResolved, Message: "entry already resolved"}
	ErrUpload          = &Error{Kind: KindUploadFailed, Message: "upload failed"}
	ErrTransientFetch  = &Error{Kind: KindTransientFetch, Message: "fetch failed"}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "forbidden"}
)

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func SlotConflict(date, clock string) error {
	return &Error{Kind: KindSlotConflict, Message: fmt.Sprintf("slot %s %s no longer available", date, clock)}
}

func NotFound(what, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", what, id)}
}

func AlreadyResolved(id, status string) error {
	return &Error{Kind: KindAlreadyResolved, Message: fmt.Sprintf("entry %q already %s", id, status)}
}

func Upload(err error) error {
	return &Error{Kind: KindUploadFailed, Message: "object store rejected the upload", Err: err}
}

func TransientFetch(what string, err error) error {
	return &Error{Kind: KindTransientFetch, Message: what, Err: err}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message of err. Internal errors get a generic text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal error"
}
