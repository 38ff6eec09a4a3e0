// Package binder fills request structs from an HTTP request.
//
// Each binder reads one source and only touches fields tagged for it:
//
//	type listRequest struct {
//	    UserID     string `path:"userID" json:"-"`
//	    Limit      int    `query:"limit" json:"-"`
//	    UnreadOnly bool   `query:"unread" json:"-"`
//	}
//
// JSON decodes the body strictly: unknown fields, trailing data and bodies
// over DefaultMaxJSONSize are rejected. Path takes an extractor such as
// chi.URLParam. Query reads the URL query string. Untagged fields are
// bound by their lowercased name for Path and Query.
package binder
