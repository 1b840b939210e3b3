package generate

import (
	"errors"
	"fmt"
)

// ErrImagesUnsupported is returned by backends that cannot produce images.
var ErrImagesUnsupported = errors.New("backend does not generate images")

// RetryableError indicates a transient failure that can be retried: rate
// limiting, a 5xx response or a transport failure (StatusCode 0).
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// MalformedResponseError means the backend answered but the answer could not
// be used. Retrying the same request will not help.
type MalformedResponseError struct {
	Op  string
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %v (raw: %s)", e.Op, e.Err, truncate(e.Raw, 200))
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

func malformed(op, raw string, err error) error {
	return &MalformedResponseError{Op: op, Raw: raw, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
