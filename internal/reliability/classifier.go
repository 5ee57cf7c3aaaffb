package reliability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// StatusError is a non-2xx answer from a remote collaborator.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s http status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s http status %d: %s", e.Service, e.Code, body)
}

// CheckResponse turns a non-2xx response into a *StatusError carrying a
// bounded prefix of the body.
func CheckResponse(service string, res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return &StatusError{Service: service, Code: res.StatusCode, Body: string(body)}
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether a caller could reasonably try again later.
// Nothing in the turn pipeline retries; the flag is surfaced to clients.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return IsRetryableHTTPStatus(se.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
