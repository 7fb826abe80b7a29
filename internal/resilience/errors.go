package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	// KindTransient failures (network, rate limit, 5xx, timeouts) are retried.
	KindTransient ErrorKind = "transient"
	// KindPermanent failures (auth, not found, invalid input) are not.
	KindPermanent ErrorKind = "permanent"
)

// ProviderError is returned by provider adapters.
type ProviderError struct {
	Provider   string
	Op         string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	fmt.Fprintf(&b, " (%s", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ", status %d", e.StatusCode)
	}
	b.WriteString(")")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable provider error.
func Transient(provider, op string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: KindTransient, StatusCode: statusCode, Err: err}
}

// Permanent wraps err as a non-retryable provider error.
func Permanent(provider, op string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: KindPermanent, StatusCode: statusCode, Err: err}
}

// Classify wraps err as a ProviderError, choosing the kind from the HTTP
// status code (when non-zero) or from the error itself. Errors that already
// carry a ProviderError are returned unchanged.
func Classify(provider, op string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if statusCode != 0 {
		if IsTransientHTTPStatus(statusCode) {
			return Transient(provider, op, statusCode, err)
		}
		return Permanent(provider, op, statusCode, err)
	}
	if IsTransient(err) {
		return Transient(provider, op, 0, err)
	}
	return Permanent(provider, op, 0, err)
}

// IsPermanent returns true if err carries a permanent ProviderError.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindPermanent
}

// IsTransient returns true if the error (or any error in its chain) is a
// transient ProviderError, or if it matches common transient error patterns
// (network timeouts, connection resets, DNS failures). A permanent
// ProviderError is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
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

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
