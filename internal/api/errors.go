package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("storefront api unavailable")
	ErrLoginFailed  = errors.New("login failed")
	ErrNoUser       = errors.New("response carries no user")
)

// APIError is a non-2xx answer from the storefront API. Errors holds the
// first message per field of a validation failure.
type APIError struct {
	Status  int
	Message string
	Errors  map[string]string
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}

	var payload struct {
		Message string                     `json:"message"`
		Errors  map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}
	e.Message = payload.Message

	for field, raw := range payload.Errors {
		if msg := firstMessage(raw); msg != "" {
			if e.Errors == nil {
				e.Errors = make(map[string]string)
			}
			e.Errors[field] = msg
		}
	}
	return e
}

// firstMessage accepts either ["msg", ...] or "msg".
func firstMessage(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 {
			return list[0]
		}
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return ""
}

// Summary is the user-facing text: validation errors flattened as
// "field: message" pairs, else the API message, else the status text.
func (e *APIError) Summary() string {
	if len(e.Errors) > 0 {
		fields := make([]string, 0, len(e.Errors))
		for field := range e.Errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			parts = append(parts, field+": "+e.Errors[field])
		}
		return strings.Join(parts, ", ")
	}
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storefront api: status %d: %s", e.Status, e.Summary())
}

// Is lets errors.Is(err, ErrUnauthorized) match a 401.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Message extracts a user-facing message from err.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Summary()
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
