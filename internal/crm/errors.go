package crm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrSessionExpired is returned when the CRM rejects the operator's credentials.
// It is terminal for the daemon: nothing retries past it.
var ErrSessionExpired = errors.New("crm: session expired")

// APIError is a non-2xx response other than an auth failure.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("crm: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("crm: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// IsTransient reports whether err is worth retrying on the next tick:
// network failures, timeouts, throttling and server errors.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrSessionExpired) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
