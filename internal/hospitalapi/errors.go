package hospitalapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured is returned when no base URL was provided.
var ErrNotConfigured = errors.New("hospitalapi: base url not configured")

// APIError is a non-2xx response from the hospital API. Message is the
// server's own message when one was sent.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hospitalapi: status %d", e.Status)
	}
	return fmt.Sprintf("hospitalapi: status %d: %s", e.Status, e.Message)
}

// IsConflict reports whether err means the requested slot is no longer
// bookable (409 or 422).
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusConflict || apiErr.Status == http.StatusUnprocessableEntity
}

// IsUnauthorized reports a 401 from upstream.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// StatusOf returns the upstream status or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
