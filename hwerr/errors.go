// Package hwerr holds the error taxonomy shared by the sysfs resource layer
// and the character device buses.
//
// Every error returned by this module is either one of the Error kinds or an
// *OpError carrying one. errors.Is(err, hwerr.ErrorTimeout) selects on the kind,
// errors.Is(err, syscall.EBUSY) reaches the operating system cause.
package hwerr

import (
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// Error is a comparable error kind
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrorIO                   = Error("I/O error")
	ErrorParse                = Error("unexpected attribute content")
	ErrorAlreadyInUse         = Error("resource already in use")
	ErrorInvalidState         = Error("invalid state")
	ErrorInvalidConfiguration = Error("invalid configuration")
	ErrorUnsupported          = Error("unsupported operation")
	ErrorTimeout              = Error("timeout")
)

// OpError describes a failed operation on a path
type OpError struct {
	Kind Error
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Path)
	}
	sb.WriteString(": ")
	sb.WriteString(string(e.Kind))
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// Is matches the kind of the error, the cause is reached through Unwrap
func (e *OpError) Is(target error) bool {
	k, ok := target.(Error)
	return ok && k == e.Kind
}

// New returns an *OpError of the given kind
func New(kind Error, op string, path string, err error) error {
	return &OpError{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// Newf is New with a formatted cause
func Newf(kind Error, op string, path string, format string, args ...interface{}) error {
	return New(kind, op, path, errors.Errorf(format, args...))
}

// KindOf returns the kind carried by err, or an empty kind for nil and foreign errors
func KindOf(err error) Error {
	if err == nil {
		return ""
	}

	var op *OpError
	if errors.As(err, &op) {
		return op.Kind
	}

	var k Error
	if errors.As(err, &k) {
		return k
	}

	return ""
}

// Errno extracts the operating system error code from err, if there is one
func Errno(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

// IsErrno reports whether err was caused by any of the given codes
func IsErrno(err error, codes ...syscall.Errno) bool {
	errno, ok := Errno(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if errno == c {
			return true
		}
	}
	return false
}
