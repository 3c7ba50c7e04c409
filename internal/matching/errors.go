package matching

import (
	"fmt"
	"net/http"
)

const (
	ReasonRequest   = "request failed"
	ReasonStatus    = "unexpected status"
	ReasonMalformed = "malformed result"
	ReasonRateLimit = "rate limited"
)

// SubmissionError reports a failed or unusable matching call. The profile is
// untouched, so the same submission can be retried.
type SubmissionError struct {
	ProfileID  string
	StatusCode int // 0 when no response was received
	Reason     string
	Err        error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("submitting profile %s: %s", e.ProfileID, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt can reasonably succeed: transport
// failures, rate limiting, server errors and malformed results.
func (e *SubmissionError) Retryable() bool {
	return e.Reason == ReasonMalformed || e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}
