// Package sanitize redacts sensitive values from job arguments before they are
// attached to a transaction.
package sanitize

import (
	"fmt"
	"reflect"
	"strings"
)

const (
	// FilteredValue replaces the value of a filtered key.
	FilteredValue = "[FILTERED]"
	// RecursiveValue replaces a container that contains itself.
	RecursiveValue = "[RECURSIVE VALUE]"
)

// Sanitizer produces a redacted copy of value. Implementations must not
// modify value.
type Sanitizer interface {
	Sanitize(value any, filterKeys []string) any
}

// SanitizerFunc adapts a function to Sanitizer.
type SanitizerFunc func(value any, filterKeys []string) any

// Sanitize calls f.
func (f SanitizerFunc) Sanitize(value any, filterKeys []string) any {
	return f(value, filterKeys)
}

// Filter is the default Sanitizer. Map values whose key matches one of the
// filter keys are replaced with FilteredValue; nested maps and slices are
// walked. Structs become maps of their exported fields keyed by json name,
// and a field is filtered when either its Go name or its json name matches.
// Key matching is exact unless CaseInsensitive is set.
type Filter struct {
	CaseInsensitive bool
}

// Default is the exact-match filter.
var Default Sanitizer = Filter{}

// Sanitize implements Sanitizer.
func (f Filter) Sanitize(value any, filterKeys []string) any {
	w := walker{
		keys:            make(map[string]struct{}, len(filterKeys)),
		caseInsensitive: f.CaseInsensitive,
		visiting:        make(map[uintptr]struct{}),
	}
	for _, key := range filterKeys {
		w.keys[w.normalize(key)] = struct{}{}
	}
	return w.walk(value)
}

type walker struct {
	keys            map[string]struct{}
	caseInsensitive bool
	visiting        map[uintptr]struct{}
}

func (w *walker) normalize(key string) string {
	if w.caseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

func (w *walker) filtered(key string) bool {
	_, ok := w.keys[w.normalize(key)]
	return ok
}

func (w *walker) walk(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string, bool, float32, float64, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, fmt.Stringer, error:
		return v
	case map[string]any:
		return w.enter(reflect.ValueOf(v), func() any {
			out := make(map[string]any, len(v))
			for key, item := range v {
				out[key] = w.entry(key, item)
			}
			return out
		})
	case []any:
		return w.enter(reflect.ValueOf(v), func() any {
			out := make([]any, len(v))
			for i, item := range v {
				out[i] = w.walk(item)
			}
			return out
		})
	}
	return w.walkReflect(reflect.ValueOf(value))
}

func (w *walker) entry(key string, item any) any {
	if w.filtered(key) {
		return FilteredValue
	}
	return w.walk(item)
}

// walkReflect handles typed maps, slices, arrays and structs. Other kinds are
// returned unchanged.
func (w *walker) walkReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return rv.Interface()
		}
		return w.enter(rv, func() any {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				key := fmt.Sprint(iter.Key().Interface())
				out[key] = w.entry(key, iter.Value().Interface())
			}
			return out
		})
	case reflect.Slice:
		if rv.IsNil() {
			return rv.Interface()
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Interface()
		}
		return w.enter(rv, func() any { return w.elements(rv) })
	case reflect.Array:
		return w.elements(rv)
	case reflect.Struct:
		return w.fields(rv)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		elem := rv.Elem()
		switch elem.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
			if rv.Kind() == reflect.Pointer {
				return w.enter(rv, func() any { return w.walk(elem.Interface()) })
			}
			return w.walk(elem.Interface())
		}
		return rv.Interface()
	default:
		return rv.Interface()
	}
}

func (w *walker) elements(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = w.walk(rv.Index(i).Interface())
	}
	return out
}

func (w *walker) fields(rv reflect.Value) map[string]any {
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		if w.filtered(field.Name) || w.filtered(name) {
			out[name] = FilteredValue
			continue
		}
		out[name] = w.walk(rv.Field(i).Interface())
	}
	return out
}

// enter marks the container identified by rv as in progress while build runs,
// returning RecursiveValue when it is already being walked.
func (w *walker) enter(rv reflect.Value, build func() any) any {
	id := rv.Pointer()
	if id == 0 {
		return build()
	}
	if _, ok := w.visiting[id]; ok {
		return RecursiveValue
	}
	w.visiting[id] = struct{}{}
	defer delete(w.visiting, id)
	return build()
}
