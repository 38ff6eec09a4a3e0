package handler

import (
	"errors"
	"net/http"
)

var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError carries a status code and a stable machine-readable key.
type HTTPError struct {
	Code  int
	Key   string
	cause error
}

func (e HTTPError) Error() string {
	if e.cause != nil {
		return e.Key + ": " + e.cause.Error()
	}
	return e.Key
}

func (e HTTPError) Unwrap() error { return e.cause }

// Is matches another HTTPError with the same code and key.
func (e HTTPError) Is(target error) bool {
	t, ok := target.(HTTPError)
	return ok && t.Code == e.Code && t.Key == e.Key
}

// Wrap returns a copy of e that wraps cause.
func (e HTTPError) Wrap(cause error) HTTPError {
	e.cause = cause
	return e
}

// NewHTTPError creates an HTTPError with the given status code and key.
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict            = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnprocessableEntity = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrNotImplemented      = HTTPError{Code: http.StatusNotImplemented, Key: "not_implemented"}
	ErrBadGateway          = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

// ValidationError maps field names to messages.
type ValidationError map[string][]string

func (e ValidationError) Error() string { return "validation failed" }

func plainErrorHandler(ctx Context, err error) {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		http.Error(ctx.ResponseWriter(), httpErr.Key, httpErr.Code)
		return
	}
	http.Error(ctx.ResponseWriter(), http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
