// Package faults carries the scan engine's error taxonomy. Every failure
// that crosses a component boundary is classified into one of the codes
// below, and remediation retry decisions are driven by the Transient flag
// rather than by unwinding.
package faults

import (
	"errors"
	"fmt"
)

// Fault codes.
const (
	CodeEnumeration = "ENUMERATION_FAULT"
	CodeThrottled   = "THROTTLED"
	CodeUnavailable = "UNAVAILABLE"
	CodeNotFound    = "NOT_FOUND"
	CodeDenied      = "ACCESS_DENIED"
	CodeNoDefault   = "NO_DEFAULT_VALUE"
	CodeSinkWrite   = "SINK_WRITE_FAULT"
	CodeInternal    = "INTERNAL"
)

// Fault is a classified error with enough context to decide whether the
// failed operation may be retried.
type Fault struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Transient bool   `json:"-"`
	Internal  error  `json:"-"`
}

// Error implements the error interface
func (f *Fault) Error() string {
	if f.Internal != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Internal)
	}
	return f.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (f *Fault) Unwrap() error {
	return f.Internal
}

// New creates a new Fault
func New(code, message string, transient bool) *Fault {
	return &Fault{Code: code, Message: message, Transient: transient}
}

// Wrap wraps an error with a Fault
func Wrap(err error, code, message string, transient bool) *Fault {
	return &Fault{Code: code, Message: message, Transient: transient, Internal: err}
}

// Enumeration creates an inventory enumeration fault. Enumeration faults
// abort the affected account only, never the run.
func Enumeration(account string, err error) *Fault {
	return Wrap(err, CodeEnumeration, fmt.Sprintf("enumeration failed for account %s", account), false)
}

// Throttled creates a transient rate-limit fault.
func Throttled(err error) *Fault {
	return Wrap(err, CodeThrottled, "request throttled by inventory API", true)
}

// Unavailable creates a transient availability fault.
func Unavailable(err error) *Fault {
	return Wrap(err, CodeUnavailable, "inventory API unavailable", true)
}

// NotFound creates a permanent not-found fault.
func NotFound(resourceID string, err error) *Fault {
	return Wrap(err, CodeNotFound, fmt.Sprintf("resource %s not found", resourceID), false)
}

// Denied creates a permanent authorization fault.
func Denied(err error) *Fault {
	return Wrap(err, CodeDenied, "authorization denied by inventory API", false)
}

// NoDefault creates a permanent fault for a missing remediation default.
func NoDefault(tag string) *Fault {
	return New(CodeNoDefault, fmt.Sprintf("no default value configured for tag %s", tag), false)
}

// SinkWrite creates a sink write fault. The run already holds a valid
// report when this is raised, so it is surfaced as a write error.
func SinkWrite(path string, err error) *Fault {
	return Wrap(err, CodeSinkWrite, fmt.Sprintf("failed to write report artifact %s", path), false)
}

// Internal wraps an unclassified error. Treated as transient so a retry
// gets one more chance to classify it.
func InternalError(message string, err error) *Fault {
	return Wrap(err, CodeInternal, message, true)
}

// IsTransient reports whether err is a fault that may be retried.
func IsTransient(err error) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Transient
	}
	return false
}

// CodeOf returns the fault code of err, or CodeInternal when err is not a
// classified fault.
func CodeOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeInternal
}
