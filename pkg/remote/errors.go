package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when the server rejects the token. The
	// client forgets its token when it sees this.
	ErrUnauthorized = errors.New("remote: unauthorized")

	// ErrBatchMismatch is returned when the server answers a batch with a
	// different number of results than calls.
	ErrBatchMismatch = errors.New("remote: result count does not match call count")
)

// APIError is a non-2xx answer other than 401.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Temporary reports whether retrying later could succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// ParseAPIError turns an error response body into a readable message.
// Validation failures arrive as {"errors": {"field_name": ["msg", ...]}}
// and are flattened to "field name: msg, msg; other: msg", fields sorted.
// Anything else falls back to the body's "message", "error" or the status
// text.
func ParseAPIError(status int, body []byte) *APIError {
	var payload struct {
		Errors  map[string][]string `json:"errors"`
		Message string              `json:"message"`
		Error   string              `json:"error"`
	}
	msg := http.StatusText(status)
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case len(payload.Errors) > 0:
			msg = flattenErrors(payload.Errors)
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != "":
			msg = payload.Error
		}
	} else if s := strings.TrimSpace(string(body)); s != "" && len(s) < 512 {
		msg = s
	}
	return &APIError{Status: status, Message: msg}
}

func flattenErrors(errs map[string][]string) string {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, strings.ReplaceAll(f, "_", " ")+": "+strings.Join(errs[f], ", "))
	}
	return strings.Join(parts, "; ")
}
