package catalog

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRateLimited marks a request refused with 429 after retries ran out.
	ErrRateLimited = errors.New("catalog rate limited")
	// ErrUpstream marks a 5xx response or transport failure after retries ran out.
	ErrUpstream = errors.New("catalog upstream error")
	// ErrClientError marks a non-retryable 4xx response.
	ErrClientError = errors.New("catalog rejected request")
	// ErrNotFound marks a 404 response.
	ErrNotFound = errors.New("catalog resource not found")
)

// Kind classifies a failed response.
type Kind int

const (
	KindUpstream Kind = iota
	KindRateLimited
	KindClient
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindClient:
		return "client_error"
	case KindNotFound:
		return "not_found"
	default:
		return "upstream"
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("catalog status %d", e.StatusCode)
	}
	return fmt.Sprintf("catalog status %d: %s", e.StatusCode, body)
}

// Kind classifies the status code.
func (e *StatusError) Kind() Kind {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case e.StatusCode == http.StatusNotFound:
		return KindNotFound
	case e.StatusCode >= 500:
		return KindUpstream
	case e.StatusCode >= 400:
		return KindClient
	default:
		return KindUpstream
	}
}

// Is maps the error onto the package sentinels. Not found is also a client error.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind() == KindRateLimited
	case ErrUpstream:
		return e.Kind() == KindUpstream
	case ErrNotFound:
		return e.Kind() == KindNotFound
	case ErrClientError:
		return e.Kind() == KindClient || e.Kind() == KindNotFound
	}
	return false
}

// TransportError wraps a failure that produced no response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "catalog transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrUpstream }

// IsNotFound reports whether err is a catalog 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
