package pup

import (
	"errors"
	"strings"

	"github.com/openfluke/typepack/dispatch"
)

// Status is the outcome of a transfer.
type Status int

const (
	Success Status = iota
	Unspecialized
	InvalidArgument
	AllocationFailure
	LaunchFailure
	SynchronizationFailure
)

var statusNames = [...]string{
	Success:                "success",
	Unspecialized:          "unspecialized",
	InvalidArgument:        "invalid_argument",
	AllocationFailure:      "allocation_failure",
	LaunchFailure:          "launch_failure",
	SynchronizationFailure: "synchronization_failure",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Error is the structured error returned by transfers.
type Error struct {
	Op     string
	Status Status
	Type   string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Status.String())
	if e.Type != "" {
		b.WriteString(" [")
		b.WriteString(e.Type)
		b.WriteByte(']')
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same status, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Status == t.Status
	}
	return false
}

var (
	ErrInvalidArgument     = &Error{Status: InvalidArgument}
	ErrAllocation          = &Error{Status: AllocationFailure}
	ErrLaunch              = &Error{Status: LaunchFailure}
	ErrSynchronization     = &Error{Status: SynchronizationFailure}
	ErrUnspecializedLayout = &Error{Status: Unspecialized}
)

func newError(op string, s Status, t *Type, detail string, cause error) *Error {
	e := &Error{Op: op, Status: s, Detail: detail, Cause: cause}
	if t != nil {
		e.Type = t.key.String()
	}
	return e
}

// StatusOf maps an error returned by this package to its status. Errors from
// outside the taxonomy are reported as launch failures.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	if errors.Is(err, dispatch.ErrUnspecialized) {
		return Unspecialized
	}
	return LaunchFailure
}
