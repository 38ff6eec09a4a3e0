package binder

import (
	"fmt"
	"net/http"
	"reflect"
)

// Path returns a binder for `path` tagged fields. The extractor looks up
// a route parameter by name, for example chi.URLParam.
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrFailedToParsePath)
		}

		rv, err := structValue(v, ErrFailedToParsePath)
		if err != nil {
			return err
		}

		values := make(map[string][]string)
		rt := rv.Type()
		for i := range rt.NumField() {
			name, skip := parseFieldTag(rt.Field(i), "path")
			if skip || !rv.Field(i).CanSet() {
				continue
			}
			if value := extractor(r, name); value != "" {
				values[name] = []string{value}
			}
		}
		return bindToStruct(rv, "path", values, ErrFailedToParsePath)
	}
}

func structValue(v any, bindErr error) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: target must be a non-nil pointer", bindErr)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: target must be a pointer to struct", bindErr)
	}
	return rv, nil
}
