// Package errs provides types and support related to web error functionality.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrCode represents an error code in the system.
type ErrCode int

// A set of error codes used by the api handlers.
const (
	OK ErrCode = iota
	InvalidArgument
	NotFound
	Conflict
	FailedPrecondition
	TooManyRequests
	Internal
)

var codeNames = map[ErrCode]string{
	OK:                 "ok",
	InvalidArgument:    "invalid_argument",
	NotFound:           "not_found",
	Conflict:           "conflict",
	FailedPrecondition: "failed_precondition",
	TooManyRequests:    "too_many_requests",
	Internal:           "internal",
}

var httpStatuses = map[ErrCode]int{
	OK:                 http.StatusOK,
	InvalidArgument:    http.StatusBadRequest,
	NotFound:           http.StatusNotFound,
	Conflict:           http.StatusConflict,
	FailedPrecondition: http.StatusPreconditionFailed,
	TooManyRequests:    http.StatusTooManyRequests,
	Internal:           http.StatusInternalServerError,
}

// String returns the name of the error code.
func (ec ErrCode) String() string {
	name, ok := codeNames[ec]
	if !ok {
		return "unknown"
	}
	return name
}

// Error represents an error in the system.
type Error struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

// New constructs an error based on an app error.
func New(code ErrCode, err error) Error {
	return Error{Code: code, Message: err.Error()}
}

// Newf constructs an error based on an error format.
func Newf(code ErrCode, format string, v ...any) Error {
	return Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

// Error implements the error interface.
func (e Error) Error() string { return e.Message }

// Encode implements the web Encoder interface.
func (e Error) Encode() ([]byte, string, error) {
	type response struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	data, err := json.Marshal(response{Code: e.Code.String(), Message: e.Message})
	if err != nil {
		return nil, "", err
	}

	return data, "application/json", nil
}

// HTTPStatus implements the web HTTPStatus interface so the code can be
// used to set the http response status.
func (e Error) HTTPStatus() int {
	status, ok := httpStatuses[e.Code]
	if !ok {
		return http.StatusInternalServerError
	}
	return status
}

// IsError tests the concrete error is of the Error type.
func IsError(err error) bool {
	var e Error
	return errors.As(err, &e)
}

// GetError returns a copy of the Error.
func GetError(err error) Error {
	var e Error
	if !errors.As(err, &e) {
		return Error{}
	}
	return e
}
