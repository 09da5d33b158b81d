package restclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// APIError is the base error type for non-2xx HTTP responses.
// It supports errors.Is matching by status code and errors.As extraction.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration // only set for 429
}

func (e *APIError) Error() string {
	return fmt.Sprintf("restclient: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is supports errors.Is matching by status code. ErrServer (500) matches
// any 5xx status code; all other sentinels require an exact match.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t.StatusCode == 500 && e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	return e.StatusCode == t.StatusCode
}

// Sentinel errors for common HTTP error status codes.
var (
	ErrBadRequest   = &APIError{StatusCode: 400, Message: "bad request"}
	ErrUnauthorized = &APIError{StatusCode: 401, Message: "unauthorized"}
	ErrForbidden    = &APIError{StatusCode: 403, Message: "forbidden"}
	ErrNotFound     = &APIError{StatusCode: 404, Message: "not found"}
	ErrRateLimit    = &APIError{StatusCode: 429, Message: "rate limit exceeded"}
	ErrServer       = &APIError{StatusCode: 500, Message: "server error"}
)

// maxErrorBody is the maximum number of bytes read from an error response body.
const maxErrorBody = 4096

// errorFromResponse creates an *APIError from an HTTP response, reading up
// to maxErrorBody bytes of the body for the message.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				apiErr.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
	}
	return apiErr
}

// FailureAction classifies how a caller should react to a request failure.
type FailureAction int

const (
	// RetryTransient means use exponential backoff (network errors, 5xx).
	RetryTransient FailureAction = iota
	// RetryAuth means the request needs fresh credentials.
	RetryAuth
	// RespectServer means honor the server-provided Retry-After delay.
	RespectServer
	// PermanentFailure means stop retrying (403, 404).
	PermanentFailure
)

// ClassifyError determines the appropriate reaction to a request error.
func ClassifyError(err error) FailureAction {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return RetryTransient
	}
	switch {
	case apiErr.Is(ErrUnauthorized):
		return RetryAuth
	case apiErr.Is(ErrRateLimit):
		return RespectServer
	case apiErr.Is(ErrForbidden), apiErr.Is(ErrNotFound):
		return PermanentFailure
	case apiErr.Is(ErrServer):
		return RetryTransient
	default:
		return RetryTransient
	}
}
