package crm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is one entry of the CRM's error array.
type APIError struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields,omitempty"`
}

// Error is a non-2xx CRM response.
type Error struct {
	StatusCode int
	Errors     []APIError
	Body       string
}

func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		if e.Body == "" {
			return fmt.Sprintf("crm: HTTP %d", e.StatusCode)
		}
		return fmt.Sprintf("crm: HTTP %d: %s", e.StatusCode, e.Body)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		parts = append(parts, item.ErrorCode+": "+item.Message)
	}
	return fmt.Sprintf("crm: HTTP %d: %s", e.StatusCode, strings.Join(parts, "; "))
}

// Code returns the first CRM error code, if any.
func (e *Error) Code() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].ErrorCode
}

func parseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status}
	if err := json.Unmarshal(body, &e.Errors); err != nil {
		e.Errors = nil
		e.Body = strings.TrimSpace(string(body))
	}
	return e
}
