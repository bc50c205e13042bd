// Package resilience provides the error taxonomy, retry policy, and circuit
// breaker used around external enrichment calls.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// FatalError marks a backend failure that no retry can fix: bad credentials,
// a malformed request shape, an unknown model.
type FatalError struct {
	Err        error
	StatusCode int
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return "fatal error"
	}
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps an error as fatal with an optional HTTP status code.
func NewFatalError(err error, statusCode int) *FatalError {
	return &FatalError{Err: err, StatusCode: statusCode}
}

// FatalConfigError is the run-level error: the run cannot continue because
// of configuration, credentials, or an unreachable backend.
type FatalConfigError struct {
	Reason string
	Err    error
}

func (e *FatalConfigError) Error() string {
	if e.Err == nil {
		return "fatal config: " + e.Reason
	}
	return "fatal config: " + e.Reason + ": " + e.Err.Error()
}

func (e *FatalConfigError) Unwrap() error {
	return e.Err
}

// NewFatalConfigError builds a FatalConfigError. err may be nil.
func NewFatalConfigError(reason string, err error) *FatalConfigError {
	return &FatalConfigError{Reason: reason, Err: err}
}

// IsFatal reports whether err carries a FatalError or FatalConfigError.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return true
	}
	return IsFatalConfig(err)
}

// IsFatalConfig reports whether err carries a FatalConfigError.
func IsFatalConfig(err error) bool {
	var fce *FatalConfigError
	return errors.As(err, &fce)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, a per-call deadline, or matches common transient network
// patterns. Fatal errors are never transient.
func IsTransient(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 409, 425, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}

// IsFatalHTTPStatus returns true for request or credential problems that a
// retry will not fix.
func IsFatalHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 400, 401, 403, 404, 405, 413, 422:
		return true
	default:
		return false
	}
}

// ClassifyHTTP wraps err according to an HTTP-like status code. Unknown codes
// are treated as transient so they consume retry budget rather than abort the run.
func ClassifyHTTP(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	switch {
	case IsFatalHTTPStatus(statusCode):
		return NewFatalError(err, statusCode)
	case IsTransientHTTPStatus(statusCode):
		return NewTransientError(err, statusCode)
	default:
		return NewTransientError(err, statusCode)
	}
}

// ErrorKind labels an error for logs and the run ledger.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsFatalConfig(err):
		return "fatal_config"
	case IsFatal(err):
		return "fatal"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}
