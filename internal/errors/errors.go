// Package errors provides the harness error taxonomy and exit codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Exit codes for different error categories.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitConfigError  = 2
	ExitSetupError   = 3
	ExitProcessError = 4
	ExitTimeoutError = 5
)

// HarnessError is the base error type for coded harness errors.
type HarnessError struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message, including the cause if present.
func (e *HarnessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error.
func (e *HarnessError) Unwrap() error {
	return e.Cause
}

// ExitCode implements coder.
func (e *HarnessError) ExitCode() int {
	return e.Code
}

// NewConfigError creates a new configuration error.
func NewConfigError(msg string) *HarnessError {
	return &HarnessError{Code: ExitConfigError, Message: msg}
}

// NewConfigErrorWithCause creates a new configuration error with an underlying cause.
func NewConfigErrorWithCause(msg string, cause error) *HarnessError {
	return &HarnessError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewSetupError creates a new environment setup error.
func NewSetupError(msg string) *HarnessError {
	return &HarnessError{Code: ExitSetupError, Message: msg}
}

// NewSetupErrorWithCause creates a new environment setup error with an underlying cause.
func NewSetupErrorWithCause(msg string, cause error) *HarnessError {
	return &HarnessError{Code: ExitSetupError, Message: msg, Cause: cause}
}

// NewGeneralError creates a new general error.
func NewGeneralError(msg string) *HarnessError {
	return &HarnessError{Code: ExitGeneralError, Message: msg}
}

// NewGeneralErrorWithCause creates a new general error with an underlying cause.
func NewGeneralErrorWithCause(msg string, cause error) *HarnessError {
	return &HarnessError{Code: ExitGeneralError, Message: msg, Cause: cause}
}

// MissingFileError is returned when a replacement targets a file that does not exist.
type MissingFileError struct {
	File   string
	Root   string
	Origin string
}

func (e *MissingFileError) Error() string {
	msg := fmt.Sprintf("could not find file %q to process replacements inside %q", e.File, e.Root)
	if e.Origin != "" {
		msg += " (" + e.Origin + ")"
	}
	return msg
}

// ExitCode implements coder.
func (e *MissingFileError) ExitCode() int { return ExitSetupError }

// ReplacementNotFoundError is returned when the search text of a strict
// replacement is absent from its target file.
type ReplacementNotFoundError struct {
	File   string
	Find   string
	Origin string
}

func (e *ReplacementNotFoundError) Error() string {
	msg := fmt.Sprintf("could not find %q inside %q", e.Find, e.File)
	if e.Origin != "" {
		msg += " (" + e.Origin + ")"
	}
	return msg
}

// ExitCode implements coder.
func (e *ReplacementNotFoundError) ExitCode() int { return ExitSetupError }

// DependencyResolutionError is returned when the in-project resolver
// produced output that is not a JSON list of packages.
type DependencyResolutionError struct {
	Output string
	Cause  error
}

func (e *DependencyResolutionError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 200 {
		out = out[:200] + "..."
	}
	if e.Cause != nil {
		return fmt.Sprintf("could not determine dependencies: %v (output: %q)", e.Cause, out)
	}
	return fmt.Sprintf("could not determine dependencies (output: %q)", out)
}

func (e *DependencyResolutionError) Unwrap() error { return e.Cause }

// ExitCode implements coder.
func (e *DependencyResolutionError) ExitCode() int { return ExitSetupError }

// UnknownFirewallError is returned when a firewall binding names a firewall
// missing from the security configuration.
type UnknownFirewallError struct {
	Firewall string
	File     string
}

func (e *UnknownFirewallError) Error() string {
	return fmt.Sprintf("could not find firewall %q in %s", e.Firewall, e.File)
}

// ExitCode implements coder.
func (e *UnknownFirewallError) ExitCode() int { return ExitSetupError }

// ProcessFailedError is returned when a subprocess exits non-zero and
// failure was not allowed.
type ProcessFailedError struct {
	Command  string
	Dir      string
	ExitCode int
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *ProcessFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "the command %q failed (exit code %d)", e.Command, e.ExitCode)
	if e.Dir != "" {
		fmt.Fprintf(&b, "\n\nWorking directory: %s", e.Dir)
	}
	if out := strings.TrimSpace(e.Stdout); out != "" {
		fmt.Fprintf(&b, "\n\nOutput:\n%s", out)
	}
	if errOut := strings.TrimSpace(e.Stderr); errOut != "" {
		fmt.Fprintf(&b, "\n\nError Output:\n%s", errOut)
	}
	return b.String()
}

func (e *ProcessFailedError) Unwrap() error { return e.Cause }

// Code returns the category exit code. ExitCode is taken by the child's code.
func (e *ProcessFailedError) Code() int { return ExitProcessError }

// ProcessTimeoutError is returned when a subprocess outlives its timeout.
// Stdout and Stderr hold whatever was captured before the kill.
type ProcessTimeoutError struct {
	Command string
	Timeout time.Duration
	Stdout  string
	Stderr  string
}

func (e *ProcessTimeoutError) Error() string {
	msg := fmt.Sprintf("the command %q exceeded the timeout of %s", e.Command, e.Timeout)
	if out := strings.TrimSpace(e.Stdout); out != "" {
		msg += "\n\nPartial output:\n" + out
	}
	return msg
}

// ExitCode implements coder.
func (e *ProcessTimeoutError) ExitCode() int { return ExitTimeoutError }

type coder interface {
	ExitCode() int
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	var h *HarnessError
	return stderrors.As(err, &h) && h.Code == ExitConfigError
}

// IsProcessFailed checks if an error is (or wraps) a ProcessFailedError.
func IsProcessFailed(err error) bool {
	var pf *ProcessFailedError
	return stderrors.As(err, &pf)
}

// IsTimeout checks if an error is (or wraps) a ProcessTimeoutError.
func IsTimeout(err error) bool {
	var te *ProcessTimeoutError
	return stderrors.As(err, &te)
}

// GetExitCode returns the exit code for an error.
// Errors outside the taxonomy map to ExitGeneralError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var pf *ProcessFailedError
	if stderrors.As(err, &pf) {
		return pf.Code()
	}
	var c coder
	if stderrors.As(err, &c) {
		return c.ExitCode()
	}
	return ExitGeneralError
}
