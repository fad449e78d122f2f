// Package expect verifies the outcome of test operations against the
// expectations declared in a test file: expected errors, expected events
// and the expected final contents of collections.
package expect

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/unifiedrunner/internal/testformat"
)

// ActualError is an error observed while running an operation, with the
// classification an error expectation can inspect.
type ActualError interface {
	error
	// IsServerError reports whether the deployment reported the error, as
	// opposed to the client library detecting it locally.
	IsServerError() bool
	Message() (string, bool)
	Code() (int32, bool)
	CodeName() (string, bool)
	HasLabel(label string) bool
}

// ObservedError is the concrete ActualError produced by executors.
type ObservedError struct {
	Server    bool
	Text      string
	ErrorCode int32
	HasCode   bool
	Name      string
	Labels    []string

	// Err is the original error, if any.
	Err error
}

func (e *ObservedError) Error() string {
	if e.Text != "" {
		return e.Text
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *ObservedError) Unwrap() error { return e.Err }

func (e *ObservedError) IsServerError() bool { return e.Server }

func (e *ObservedError) Message() (string, bool) {
	if e.Text == "" {
		return "", false
	}
	return e.Text, true
}

func (e *ObservedError) Code() (int32, bool) { return e.ErrorCode, e.HasCode }

func (e *ObservedError) CodeName() (string, bool) { return e.Name, e.Name != "" }

func (e *ObservedError) HasLabel(label string) bool { return slices.Contains(e.Labels, label) }

// FromError returns err as an ActualError. An error that does not carry
// the classification itself is treated as a client error whose message is
// its text.
func FromError(err error) ActualError {
	if err == nil {
		return nil
	}
	var actual ActualError
	if errors.As(err, &actual) {
		return actual
	}
	return &ObservedError{Text: err.Error(), Err: err}
}

// Describe renders every classification of an error for diagnostics.
func Describe(err ActualError) string {
	var b strings.Builder
	kind := "client"
	if err.IsServerError() {
		kind = "server"
	}
	fmt.Fprintf(&b, "%s error", kind)
	if code, ok := err.Code(); ok {
		fmt.Fprintf(&b, " code=%d", code)
	}
	if name, ok := err.CodeName(); ok {
		fmt.Fprintf(&b, " codeName=%s", name)
	}
	if oe, ok := err.(*ObservedError); ok && len(oe.Labels) > 0 {
		fmt.Fprintf(&b, " labels=%v", oe.Labels)
	}
	if msg, ok := err.Message(); ok {
		fmt.Fprintf(&b, " message=%q", msg)
	}
	return "{" + b.String() + "}"
}

// VerificationError reports an expectation an operation did not meet.
type VerificationError struct {
	Clause  string
	Message string
}

func (e *VerificationError) Error() string { return e.Message }

func failure(clause, format string, args ...any) error {
	return &VerificationError{Clause: clause, Message: fmt.Sprintf(format, args...)}
}

// VerifyError checks an operation's error against an error expectation.
// Clauses are checked in the order they are declared in the test format and
// the first failing clause is reported. label identifies the operation in
// the message.
//
// A declared expectResult is accepted but not compared.
func VerifyError(exp testformat.ExpectError, actual error, label string) error {
	if actual == nil {
		return failure("isError", "%s: expected an error but the operation succeeded", label)
	}
	err := FromError(actual)
	desc := Describe(err)

	if exp.IsClientError != nil && *exp.IsClientError != !err.IsServerError() {
		want := "server"
		if *exp.IsClientError {
			want = "client"
		}
		return failure("isClientError", "%s: expected %s error but got %s", label, want, desc)
	}

	if exp.ErrorContains != nil {
		msg, ok := err.Message()
		if !ok || !strings.Contains(msg, *exp.ErrorContains) {
			return failure("errorContains", "%s: %s should include message %q", label, desc, *exp.ErrorContains)
		}
	}

	if exp.ErrorCode != nil {
		code, ok := err.Code()
		if !ok {
			return failure("errorCode", "%s: %s was expected to include code %d but had no code", label, desc, *exp.ErrorCode)
		}
		if code != *exp.ErrorCode {
			name, _ := err.CodeName()
			return failure("errorCode", "%s: error code %d (%s) did not match expected error code %d", label, code, name, *exp.ErrorCode)
		}
	}

	if exp.ErrorCodeName != nil {
		name, ok := err.CodeName()
		if !ok {
			return failure("errorCodeName", "%s: %s was expected to include code name %q but had no code name", label, desc, *exp.ErrorCodeName)
		}
		if name != *exp.ErrorCodeName {
			return failure("errorCodeName", "%s: error code name %q did not match expected error code name %q", label, name, *exp.ErrorCodeName)
		}
	}

	for _, l := range exp.ErrorLabelsContain {
		if !err.HasLabel(l) {
			return failure("errorLabelsContain", "%s: expected %s to contain label %q", label, desc, l)
		}
	}
	for _, l := range exp.ErrorLabelsOmit {
		if err.HasLabel(l) {
			return failure("errorLabelsOmit", "%s: expected %s to omit label %q", label, desc, l)
		}
	}

	// TODO: compare exp.ExpectResult with the partial result carried by
	// bulk write errors once executors expose it.
	return nil
}
