package crm

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError is returned for any non-2xx response or transport failure talking to the record store.
// StatusCode is 0 for transport failures.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("crm: %s: %v", e.Op, e.Err)
	}
	if e.Body == "" && e.Err != nil {
		return fmt.Sprintf("crm: %s: upstream returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("crm: %s: upstream returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("crm: %s: upstream returned %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ClientError reports whether the upstream rejected the request itself (4xx).
func (e *UpstreamError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// HTTPStatus maps the upstream failure to the status returned to our own callers.
// Upstream 4xx are passed through; everything else becomes 502 Bad Gateway.
func (e *UpstreamError) HTTPStatus() int {
	if e.ClientError() {
		return e.StatusCode
	}
	if e.StatusCode == http.StatusServiceUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.StatusCode == http.StatusNotFound
}
