package view

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var (
	timeType    = reflect.TypeFor[time.Time]()
	scannerType = reflect.TypeFor[sql.Scanner]()
)

// timeLayouts are the text forms of timestamps returned by drivers without
// native time support and by JSON aggregates.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// assign stores the database value src in dst.
func assign(dst reflect.Value, src any) error {
	if src == nil {
		dst.SetZero()
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		if b, ok := src.([]byte); ok {
			src = bytes.Clone(b)
		}
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}
	if dst.Kind() == reflect.Pointer {
		v := reflect.New(dst.Type().Elem())
		if err := assign(v.Elem(), src); err != nil {
			return err
		}
		dst.Set(v)
		return nil
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		if b, ok := src.([]byte); ok {
			src = bytes.Clone(b)
			sv = reflect.ValueOf(src)
		}
		dst.Set(sv)
		return nil
	}
	switch dst.Kind() {
	case reflect.String:
		switch v := src.(type) {
		case []byte:
			dst.SetString(string(v))
		case json.Number:
			dst.SetString(v.String())
		default:
			dst.SetString(fmt.Sprint(v))
		}
		return nil
	case reflect.Bool:
		switch v := src.(type) {
		case int64:
			dst.SetBool(v != 0)
			return nil
		case json.Number:
			dst.SetBool(v != "0")
			return nil
		case []byte, string:
			b, err := strconv.ParseBool(text(v))
			if err != nil {
				return err
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt(src)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt(src)
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(src)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			switch v := src.(type) {
			case string:
				dst.SetBytes([]byte(v))
				return nil
			}
		}
	case reflect.Struct:
		if dst.Type() == timeType {
			t, err := toTime(src)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}
	if sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
}

func text(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func toInt(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return v.Int64()
	case []byte, string:
		return strconv.ParseInt(text(v), 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to an integer", src)
}

func toFloat(src any) (float64, error) {
	switch v := src.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case []byte, string:
		return strconv.ParseFloat(text(v), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to a float", src)
}

func toTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case []byte, string:
		s := text(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse time %q", s)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to a time", src)
}

// key normalizes an id or correlation value so values of different driver
// representations compare equal as map keys.
func key(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.String()
	case []byte:
		return string(v)
	case *int64:
		if v != nil {
			return *v
		}
		return nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return key(rv.Elem().Interface())
	}
	return v
}

// isZero reports whether v is nil or the zero value of its type.
func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

// equal compares attribute values.
func equal(a, b any) bool {
	switch a := a.(type) {
	case time.Time:
		bt, ok := b.(time.Time)
		return ok && a.Equal(bt)
	case []byte:
		bb, ok := b.([]byte)
		return ok && bytes.Equal(a, bb)
	}
	return reflect.DeepEqual(a, b)
}

// clone copies a value so the snapshot is not changed through the field.
func clone(v any) any {
	switch v := v.(type) {
	case []byte:
		return bytes.Clone(v)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		c := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(c, rv)
		return c.Interface()
	case reflect.Pointer:
		if rv.IsNil() {
			return v
		}
		c := reflect.New(rv.Type().Elem())
		c.Elem().Set(rv.Elem())
		return c.Interface()
	}
	return v
}

// value returns the database value of a field, dereferencing pointers.
func value(f reflect.Value) any {
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil
		}
		return f.Elem().Interface()
	}
	return f.Interface()
}
