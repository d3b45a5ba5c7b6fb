package hubclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ConnectionError means the hub could not be reached at all: refused,
// unroutable, DNS failure. The engine treats these as transient.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("hubclient: cannot reach %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means the hub was reached but did not answer in time.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("hubclient: %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// APIError means the hub answered with a non-success status code. The
// message is taken from the response body when the hub provides one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hubclient: hub returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("hubclient: hub returned %d", e.StatusCode)
}

// classifyErr maps a transport-level error into the client's taxonomy.
func classifyErr(op, host string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ConnectionError{Host: host, Err: urlErr.Err}
	}
	return &ConnectionError{Host: host, Err: err}
}
