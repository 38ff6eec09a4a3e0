package handler

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
)

// JSONResponse is the envelope of every JSON body.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures a JSON response.
type JSONOption func(*jsonResponse)

// WithJSONStatus overrides the status code.
func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

// WithJSONMeta attaches metadata such as paging info.
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) { r.body.Meta = meta }
}

// JSON responds 200 with v under "data".
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: JSONResponse{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError responds with err under "error". HTTPError and ValidationError
// pick the status; anything else is a 500 without the internal message.
func JSONError(err error, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusInternalServerError}
	r.body.Error = errorToDetail(err, &r.status)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func errorToDetail(err error, status *int) *ErrorDetail {
	var verr ValidationError
	if errors.As(err, &verr) {
		*status = http.StatusUnprocessableEntity
		detail := &ErrorDetail{Code: "validation_error", Message: verr.Error()}
		if len(verr) > 0 {
			detail.Details = make(map[string][]string, len(verr))
			maps.Copy(detail.Details, verr)
		}
		return detail
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		*status = httpErr.Code
		msg := http.StatusText(httpErr.Code)
		if httpErr.cause != nil && httpErr.Code < http.StatusInternalServerError {
			msg = httpErr.cause.Error()
		}
		return &ErrorDetail{Code: httpErr.Key, Message: msg}
	}

	*status = http.StatusInternalServerError
	return &ErrorDetail{Code: ErrInternalServerError.Key, Message: http.StatusText(http.StatusInternalServerError)}
}

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty responds 204 No Content.
func Empty() Response {
	return emptyResponse{status: http.StatusNoContent}
}

// EmptyWithStatus responds with status and no body.
func EmptyWithStatus(status int) Response {
	return emptyResponse{status: status}
}

type failResponse struct {
	err error
}

func (f failResponse) Render(http.ResponseWriter, *http.Request) error {
	return f.err
}

// Fail hands err to the ErrorHandler configured with Wrap.
func Fail(err error) Response {
	return failResponse{err: err}
}
