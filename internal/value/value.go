// Package value holds the plain-data conventions shared by the store and
// the directive runtime: classification, equality, truthiness and text
// conversion of values held in component state.
package value

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a plain-data value for merge purposes.
type Kind int

const (
	KindPrimitive Kind = iota
	KindDate
	KindObject
	KindArray
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindDate:
		return "date"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// KindOf classifies v. Values must already be normalised with Clone.
func KindOf(v any) Kind {
	switch v.(type) {
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	case time.Time:
		return KindDate
	default:
		return KindPrimitive
	}
}

// IsContainer reports whether v is an object-like value: a map, a slice or
// a date.
func IsContainer(v any) bool {
	return KindOf(v) != KindPrimitive
}

// Clone deep-copies v into the store's plain-data representation: maps with
// string keys become map[string]any, slices and arrays (except []byte)
// become []any, pointers are dereferenced. Everything else is kept as a
// leaf.
func Clone(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = Clone(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = Clone(x)
		}
		return out
	case string, bool, int, int64, float64, time.Time, []byte:
		return t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Clone(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Clone(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			return v
		}
		return Clone(rv.Elem().Interface())
	}
	return v
}

// CloneMap is Clone specialised to the map form used for merges.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return Clone(m).(map[string]any)
}

// Number reports v as a float64 if it is any Go numeric kind.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// SameValueZero compares two leaves: numbers by numeric value with NaN
// equal to NaN and +0 equal to -0, dates by instant, other comparable
// values with ==. Containers and non-comparable values are equal only when
// they are the same reference.
func SameValueZero(a, b any) bool {
	if fa, ok := Number(a); ok {
		fb, ok := Number(b)
		if !ok {
			return false
		}
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		return fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer() && sameLen(ra, rb)
	}
	if ra.Type().Comparable() {
		return a == b
	}
	return false
}

func sameLen(a, b reflect.Value) bool {
	if a.Kind() == reflect.Slice {
		return a.Len() == b.Len()
	}
	return true
}

// Truthy applies JavaScript truthiness: nil, false, 0, NaN and "" are
// false; every other value, including empty containers, is true.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	if f, ok := Number(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

// TypeOf names v the way the typeof operator does. nil reports
// "undefined"; maps, slices and dates report "object".
func TypeOf(v any) string {
	if v == nil {
		return "undefined"
	}
	if _, ok := Number(v); ok {
		return "number"
	}
	switch v.(type) {
	case bool:
		return "boolean"
	case string:
		return "string"
	}
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return "function"
	}
	return "object"
}

// String converts v to display text the way a DOM text node would show it.
// nil renders as the empty string.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case time.Time:
		return t.Format(time.RFC3339)
	case []any:
		parts := make([]string, len(t))
		for i, x := range t {
			parts[i] = String(x)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	case fmt.Stringer:
		return t.String()
	}
	if f, ok := Number(v); ok {
		return formatFloat(f)
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
