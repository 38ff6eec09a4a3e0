package handler

import "net/http"

// HandlerFunc handles a bound request of type R.
type HandlerFunc[R any] func(ctx Context, req R) Response

// Response renders itself to an http.ResponseWriter.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Bind parses part of an HTTP request into v.
type Bind func(r *http.Request, v any) error

// ErrorHandler writes the response for a binding, handler or render error.
type ErrorHandler func(ctx Context, err error)

// WrapOption configures Wrap.
type WrapOption[R any] func(*wrapConfig[R])

type wrapConfig[R any] struct {
	binders      []Bind
	errorHandler ErrorHandler
}

// WithBinders appends binders. They run in order and each fills only the
// fields tagged for its source.
func WithBinders[R any](binders ...Bind) WrapOption[R] {
	return func(c *wrapConfig[R]) {
		c.binders = append(c.binders, binders...)
	}
}

// WithErrorHandler replaces the default plain-text error handler.
func WithErrorHandler[R any](h ErrorHandler) WrapOption[R] {
	return func(c *wrapConfig[R]) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// Wrap converts a typed HandlerFunc to http.HandlerFunc.
func Wrap[R any](h HandlerFunc[R], opts ...WrapOption[R]) http.HandlerFunc {
	cfg := &wrapConfig[R]{errorHandler: plainErrorHandler}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(w, r)

		var req R
		for _, bind := range cfg.binders {
			if err := bind(r, &req); err != nil {
				cfg.errorHandler(ctx, ErrBadRequest.Wrap(err))
				return
			}
		}

		resp := h(ctx, req)
		if resp == nil {
			cfg.errorHandler(ctx, ErrNilResponse)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.errorHandler(ctx, err)
		}
	}
}
