package notifications

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// validateStruct runs struct tag validation and converts failures into a
// ValidationError keyed by JSON field path.
func validateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	out := NewValidationError()
	for _, fe := range fieldErrs {
		out.Add(fieldPath(fe), fieldMessage(fe))
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match the %s layout", fe.Param())
	case "bcp47_language_tag":
		return "must be a BCP 47 language tag"
	case "timezone":
		return "must be an IANA time zone"
	default:
		return "is invalid"
	}
}

func validatePreferences(p Preferences) error {
	err := validateStruct(p)
	verr := NewValidationError()
	if err != nil {
		if !errors.As(err, &verr) {
			return err
		}
	}
	for ch := range p.Channels {
		if !ch.Valid() {
			verr.Add("channels", fmt.Sprintf("unknown channel %q", ch))
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}
