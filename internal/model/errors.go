package model

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HTTPError is a non-success response from an upstream: FINN, NAV, an LLM API
// or a webhook. The retrier uses it to tell transient failures from final ones.
type HTTPError struct {
	StatusCode int
	URL        string
	RetryAfter time.Duration // zero if absent
	Err        error
}

// NewHTTPError describes resp. The body is not read.
func NewHTTPError(resp *http.Response, err error) *HTTPError {
	e := &HTTPError{
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		Err:        err,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		e.URL = resp.Request.URL.Redacted()
	}
	return e
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.URL != "" {
		msg += " from " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Transient reports whether repeating the request may succeed: 429 and 5xx.
func (e *HTTPError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ParseRetryAfter reads a Retry-After value in either delta-seconds or
// HTTP-date form. Absent, malformed or past values give zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil || !at.After(now) {
		return 0
	}
	return at.Sub(now)
}
