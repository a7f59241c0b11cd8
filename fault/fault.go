// Package fault defines the error taxonomy shared by every ledger contract.
// Every failure that crosses the invocation boundary is one of these codes so
// callers can decide whether a resubmission makes sense.
package fault

import (
	"errors"
	"fmt"
)

// Code classifies a ledger failure.
type Code string

const (
	Validation          Code = "VALIDATION"
	NotFound            Code = "NOT_FOUND"
	AlreadyExists       Code = "ALREADY_EXISTS"
	DuplicateOperation  Code = "DUPLICATE_OPERATION"
	Unauthorized        Code = "UNAUTHORIZED"
	IllegalTransition   Code = "ILLEGAL_TRANSITION"
	WrongAssetType      Code = "WRONG_ASSET_TYPE"
	InvalidKeyAttribute Code = "INVALID_KEY_ATTRIBUTE"
	StoreError          Code = "STORE_ERROR"
)

// Error is a ledger failure with a stable code and a human readable detail.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is makes errors.Is match on the code, so sentinel-style comparisons work:
//
//	errors.Is(err, fault.New(fault.NotFound, ""))
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Code == e.Code
	}
	return false
}

// New builds a fault with a preformatted detail message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the fault code from an error chain, or StoreError when the
// error did not originate in the taxonomy (I/O failures from the store).
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return StoreError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}
