package binder

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// bindToStruct sets the tagged fields of rv from values. Fields without a
// value keep their current content.
func bindToStruct(rv reflect.Value, tagName string, values map[string][]string, bindErr error) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		paramName, skip := parseFieldTag(fieldType, tagName)
		if skip {
			continue
		}
		fieldValues, ok := values[paramName]
		if !ok || len(fieldValues) == 0 {
			continue
		}

		if err := setFieldValue(field, fieldType.Type, fieldValues); err != nil {
			return fmt.Errorf("%w: field %s: %v", bindErr, paramName, err)
		}
	}
	return nil
}

// parseFieldTag returns the parameter name for field and whether to skip it.
func parseFieldTag(field reflect.StructField, tagName string) (paramName string, skip bool) {
	tag := field.Tag.Get(tagName)
	switch tag {
	case "":
		return strings.ToLower(field.Name), false
	case "-":
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, false
}

// setFieldValue converts values to the field type. Non-slice fields use
// the first value.
func setFieldValue(field reflect.Value, fieldType reflect.Type, values []string) error {
	if fieldType.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(fieldType.Elem()))
		}
		return setFieldValue(field.Elem(), fieldType.Elem(), values)
	}

	if fieldType.Kind() == reflect.Slice {
		return setSliceValue(field, fieldType, values)
	}

	if len(values) == 0 {
		return nil
	}
	value := values[0]

	switch fieldType.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, fieldType.Bits())
		if err != nil {
			return fmt.Errorf("invalid int value %q", value)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, fieldType.Bits())
		if err != nil {
			return fmt.Errorf("invalid uint value %q", value)
		}
		field.SetUint(n)

	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, fieldType.Bits())
		if err != nil {
			return fmt.Errorf("invalid float value %q", value)
		}
		field.SetFloat(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			switch strings.ToLower(value) {
			case "on", "yes", "1":
				b = true
			case "off", "no", "0", "":
				b = false
			default:
				return fmt.Errorf("invalid bool value %q", value)
			}
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported type %s", fieldType.Kind())
	}

	return nil
}

// setSliceValue fills a slice field, splitting comma-separated values.
func setSliceValue(field reflect.Value, fieldType reflect.Type, values []string) error {
	elemType := fieldType.Elem()

	var allValues []string
	for _, v := range values {
		allValues = append(allValues, strings.Split(v, ",")...)
	}

	slice := reflect.MakeSlice(fieldType, len(allValues), len(allValues))

	for i, value := range allValues {
		elem := slice.Index(i)
		if err := setFieldValue(elem, elemType, []string{strings.TrimSpace(value)}); err != nil {
			return err
		}
	}

	field.Set(slice)
	return nil
}
