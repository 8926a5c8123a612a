// Package errors is the error type handlers return to pick the response status.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an error that knows which HTTP status it should be reported with.
type Error struct {
	Status  int
	Err     error // The error this wraps
	Details []Detail
}

// Detail points at a single request field that was wrong.
type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Err)
	}
	return fmt.Sprintf("%d: %s, details: %v", e.Status, e.Err, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

type transport struct {
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
	Status  int      `json:"status"`
}

// Server errors keep their cause out of the body.
func (e *Error) MarshalJSON() ([]byte, error) {
	msg := http.StatusText(e.Status)
	if e.Status < http.StatusInternalServerError && e.Err != nil {
		msg = e.Err.Error()
	}

	return json.Marshal(transport{
		Message: msg,
		Details: e.Details,
		Status:  e.Status,
	})
}

// E builds an Error out of whatever it's given: a string or error becomes the
// cause, an int the status, and Details are appended. The status defaults to 500.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}
	if ret.Err == nil {
		ret.Err = errors.New(http.StatusText(ret.Status))
	}

	return ret
}
