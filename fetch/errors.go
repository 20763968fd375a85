package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for transport failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the source does not exist (404, NoSuchKey, ENOENT).
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrAuth indicates authentication failure (401, missing credentials).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates authorization failure (403).
	ErrAccessDenied = errors.New("access denied")

	// ErrServer indicates a remote-side failure (5xx).
	ErrServer = errors.New("server error")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")

	// ErrUnclassified is used when no other kind matches.
	ErrUnclassified = errors.New("transport error")
)

// StatusError is returned for a non-success HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected response " + e.Status
}

// TransportError wraps an underlying error with a classification.
// It preserves the original error in the chain for inspection via errors.As.
type TransportError struct {
	// Kind is the sentinel error for classification (e.g., ErrNotFound).
	Kind error
	// URL is the source involved.
	URL string
	// Err is the underlying error.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v: %v", e.URL, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *TransportError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapTransport classifies and wraps err. Returns nil if err is nil.
func wrapTransport(err error, url string) error {
	if err == nil {
		return nil
	}
	var already *TransportError
	if errors.As(err, &already) {
		return err
	}
	return &TransportError{Kind: Classify(err), URL: url, Err: err}
}

// Classify determines the sentinel error for err.
// Typed errors are checked first, then message patterns.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var status *StatusError
	if errors.As(err, &status) {
		return classifyStatus(status.Code)
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "nosuchkey", "nosuchbucket", "no such file", "not found", "404"):
		return ErrNotFound
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"):
		return ErrThrottled
	case containsAny(msg, "accessdenied", "forbidden", "403", "permission denied"):
		return ErrAccessDenied
	case containsAny(msg, "nocredentialproviders", "invalidaccesskeyid", "signaturedoesnotmatch",
		"expiredtoken", "401", "unauthorized"):
		return ErrAuth
	case containsAny(msg, "connection refused", "connection reset", "no route to host",
		"network is unreachable", "no such host", "dial tcp", "eof"):
		return ErrNetwork
	default:
		return ErrUnclassified
	}
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrThrottled
	case code == http.StatusUnauthorized:
		return ErrAuth
	case code == http.StatusForbidden:
		return ErrAccessDenied
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrTimeout
	case code >= 500:
		return ErrServer
	default:
		return ErrUnclassified
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// DownloadError reports a chunk that exhausted its retry budget.
type DownloadError struct {
	Chunk    string
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of chunk %s failed after %d attempt(s): %v", e.Chunk, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
