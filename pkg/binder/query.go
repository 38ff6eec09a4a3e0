package binder

import "net/http"

// Query returns a binder for `query` tagged fields. Slices accept repeated
// keys and comma-separated values.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rv, err := structValue(v, ErrFailedToParseQuery)
		if err != nil {
			return err
		}
		return bindToStruct(rv, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
