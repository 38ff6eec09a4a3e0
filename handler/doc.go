// Package handler turns typed request handlers into http.HandlerFunc values.
//
// A handler receives a Context and a request struct filled by binders, and
// returns a Response:
//
//	type markReadRequest struct {
//	    ID string `path:"id" json:"-"`
//	}
//
//	r.Post("/notifications/{id}/read", handler.Wrap(
//	    func(ctx handler.Context, req markReadRequest) handler.Response {
//	        if _, err := engine.MarkAsRead(ctx, req.ID); err != nil {
//	            return handler.Fail(err)
//	        }
//	        return handler.Empty()
//	    },
//	    handler.WithBinders[markReadRequest](binder.Path(chi.URLParam)),
//	    handler.WithErrorHandler[markReadRequest](errHandler),
//	))
//
// Binding and rendering failures go to the ErrorHandler. JSONErrorHandler
// classifies errors into HTTP statuses and writes the standard JSON envelope.
package handler
