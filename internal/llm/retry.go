package llm

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// MaxRetries bounds connection-setup retries in provider adapters. Once a
// stream has produced output it is never retried.
const MaxRetries = 3

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 20 * time.Second
)

// StatusError is a non-200 reply from a provider API.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api status %d: %s", e.Provider, e.Code, Truncate(e.Body, 200))
}

// Retryable reports whether the provider asked us to come back later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsRetryable reports whether err wraps a retryable StatusError.
func IsRetryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Retryable()
}

// Backoff doubles from 500ms per attempt (0-indexed), capped at 20s, and adds
// up to 50% jitter.
func Backoff(attempt int) time.Duration {
	d := backoffCap
	if attempt < 6 {
		d = min(backoffBase<<attempt, backoffCap)
	}
	return d + rand.N(d/2+1)
}

// Truncate shortens s to at most n runes for log and error messages.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
