// Package kerrors defines the stable error taxonomy shared by every
// AetherOS core subsystem (cache, journal, tier manager, ...).
//
// Every operation in this module returns a typed result using this
// taxonomy instead of ad-hoc errors, so callers can branch on Code
// without caring which subsystem produced the failure.
package kerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, subsystem-independent error category.
type Code string

// The fixed taxonomy. Values are stable and may be compared directly
// or matched with Is.
const (
	NotFound           Code = "not_found"
	PermissionDenied   Code = "permission_denied"
	InvalidData        Code = "invalid_data"
	AlreadyExists      Code = "already_exists"
	NotDirectory       Code = "not_directory"
	IsDirectory        Code = "is_directory"
	NotEmpty           Code = "not_empty"
	ReadOnly           Code = "read_only"
	DeviceError        Code = "device_error"
	IoError            Code = "io_error"
	CorruptedFs        Code = "corrupted_fs"
	OutOfSpace         Code = "out_of_space"
	TransactionFailed  Code = "transaction_failed"
	JournalError       Code = "journal_error"
	NotSupported       Code = "not_supported"
	BadSuperblock      Code = "bad_superblock"
	UnsupportedFeature Code = "unsupported_feature"
	UnsupportedVersion Code = "unsupported_version"
	BadMagic           Code = "bad_magic"
	ResourceBusy       Code = "resource_busy"
	Deadlock           Code = "deadlock"
	CrossDeviceLink    Code = "cross_device_link"
	StaleHandle        Code = "stale_handle"
	Overflow           Code = "overflow"
	NetworkError       Code = "network_error"
	ProtocolError      Code = "protocol_error"
	Timeout            Code = "timeout"
	CacheInconsistency Code = "cache_inconsistency"
	MetadataError      Code = "metadata_error"
	Other              Code = "other"
)

// Error is the structured error type returned by every public operation.
//
// Op names the failing operation (e.g. "cache.insert_or_update",
// "journal.commit") so logs and metrics can be grouped without parsing
// message text.
type Error struct {
	Op   string // operation that failed
	Code Code   // stable category
	Msg  string // human-readable detail
	Err  error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Msg == "" {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s", e.Op, e.Code)
		}
		return string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target shares this error's Code, so callers can
// write `errors.Is(err, kerrors.New("", kerrors.NotFound, ""))` or, more
// idiomatically, use Code directly via HasCode.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// New creates an Error with the given operation, code and message.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Wrap attaches op/code context to an existing error. Returns nil if
// err is nil, so Wrap can be used unconditionally at call sites.
func Wrap(op string, code Code, err error) *Error {
	if err == nil {
		return nil
	}
	var inner *Error
	if errors.As(err, &inner) {
		return &Error{Op: op, Code: code, Msg: inner.Msg, Err: err}
	}
	return &Error{Op: op, Code: code, Msg: err.Error(), Err: err}
}

// HasCode reports whether err is (or wraps) a *Error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
