package notifyapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/handler"
	"github.com/dmitrymomot/notifykit/pkg/binder"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var (
	jsonBody     = []handler.Bind{binder.JSON()}
	pathOnly     = []handler.Bind{binder.Path(chi.URLParam)}
	pathAndQuery = []handler.Bind{binder.Path(chi.URLParam), binder.Query()}
	jsonAndPath  = []handler.Bind{binder.JSON(), binder.Path(chi.URLParam)}
)

type handlers struct {
	engine Engine
	errs   handler.ErrorHandler
}

func wrap[R any](h *handlers, fn handler.HandlerFunc[R], binders []handler.Bind) http.HandlerFunc {
	return handler.Wrap(fn,
		handler.WithBinders[R](binders...),
		handler.WithErrorHandler[R](h.errs),
	)
}

type idRequest struct {
	ID string `path:"id" json:"-"`
}

type actionRequest struct {
	ID       string `path:"id" json:"-"`
	ActionID string `path:"actionID" json:"-"`
}

type userRequest struct {
	UserID string `path:"userID" json:"-"`
}

type listRequest struct {
	UserID     string `path:"userID" json:"-"`
	Limit      int    `path:"-" query:"limit" json:"-"`
	Offset     int    `path:"-" query:"offset" json:"-"`
	UnreadOnly bool   `path:"-" query:"unread" json:"-"`
}

type preferencesRequest struct {
	UserID string `path:"userID" json:"-"`
	notifications.Preferences
}

type pushRequest struct {
	UserID string `path:"userID" json:"-"`
	Token  string `json:"token" path:"-"`
}

func (h *handlers) create(ctx handler.Context, req notifications.CreateRequest) handler.Response {
	id, err := h.engine.Create(ctx, req)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(map[string]string{"id": id}, handler.WithJSONStatus(http.StatusCreated))
}

func (h *handlers) get(ctx handler.Context, req idRequest) handler.Response {
	rec, err := h.engine.Get(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(rec)
}

func (h *handlers) list(ctx handler.Context, req listRequest) handler.Response {
	if req.Limit < 0 || req.Offset < 0 {
		return handler.Fail(handler.ValidationError{"limit": {"limit and offset must not be negative"}})
	}
	recs, err := h.engine.List(ctx, req.UserID, notifications.ListOptions{
		Limit:      req.Limit,
		Offset:     req.Offset,
		UnreadOnly: req.UnreadOnly,
	})
	if err != nil {
		return handler.Fail(err)
	}
	if recs == nil {
		recs = []notifications.Record{}
	}
	return handler.JSON(recs, handler.WithJSONMeta(map[string]any{
		"limit":  req.Limit,
		"offset": req.Offset,
		"count":  len(recs),
	}))
}

func (h *handlers) markAsRead(ctx handler.Context, req idRequest) handler.Response {
	if _, err := h.engine.MarkAsRead(ctx, req.ID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}

func (h *handlers) markAllAsRead(ctx handler.Context, req userRequest) handler.Response {
	n, err := h.engine.MarkAllAsRead(ctx, req.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(map[string]int{"updated": n})
}

func (h *handlers) dismiss(ctx handler.Context, req idRequest) handler.Response {
	if err := h.engine.Dismiss(ctx, req.ID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}

func (h *handlers) retry(ctx handler.Context, req idRequest) handler.Response {
	if err := h.engine.Retry(ctx, req.ID); err != nil {
		return handler.Fail(err)
	}
	return handler.EmptyWithStatus(http.StatusAccepted)
}

func (h *handlers) flush(ctx handler.Context, req idRequest) handler.Response {
	flushed, err := h.engine.Flush(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(map[string]bool{"flushed": flushed})
}

func (h *handlers) handleAction(ctx handler.Context, req actionRequest) handler.Response {
	rec, err := h.engine.Get(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	d, err := h.engine.HandleAction(ctx, req.ActionID, rec)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(d)
}

func (h *handlers) loadPreferences(ctx handler.Context, req userRequest) handler.Response {
	prefs, err := h.engine.LoadPreferences(ctx, req.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(prefs)
}

func (h *handlers) savePreferences(ctx handler.Context, req preferencesRequest) handler.Response {
	if _, err := h.engine.SavePreferences(ctx, req.UserID, req.Preferences); err != nil {
		return handler.Fail(err)
	}
	prefs, err := h.engine.LoadPreferences(ctx, req.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(prefs)
}

func (h *handlers) subscribePush(ctx handler.Context, req pushRequest) handler.Response {
	sub, err := h.engine.SubscribeToPush(ctx, req.UserID, req.Token)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(sub, handler.WithJSONStatus(http.StatusCreated))
}

func (h *handlers) unsubscribePush(ctx handler.Context, req userRequest) handler.Response {
	if err := h.engine.UnsubscribeFromPush(ctx, req.UserID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}
