package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the GitHub API.
type APIError struct {
	Status  int
	URL     string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: %s returned %d", e.URL, e.Status)
	}
	return fmt.Sprintf("github: %s returned %d: %s", e.URL, e.Status, e.Message)
}

func newAPIError(url string, status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	return &APIError{Status: status, URL: url, Message: payload.Message}
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
