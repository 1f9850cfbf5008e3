package dispatch

import (
	"encoding/json"
	"reflect"
)

// Params is the loosely-typed parameter bag of one request. Handlers read it
// only through the typed accessors below, each of which reports a wrong type
// as a validation fault.
type Params map[string]any

// Value returns the raw value for key. Absent keys and JSON null both report
// ok=false.
func (p Params) Value(key string) (any, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the string at key, or "" when absent.
func (p Params) String(key string) (string, error) {
	v, ok := p.Value(key)
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid("%s must be a string", key)
	}
	return s, nil
}

// StringSlice returns the list of strings at key, or def when absent.
func (p Params) StringSlice(key string, def []string) ([]string, error) {
	v, ok := p.Value(key)
	if !ok {
		return def, nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalid("%s[%d] must be a string", key, i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalid("%s must be a list of strings", key)
	}
}

// Object returns the JSON object at key, or def when absent.
func (p Params) Object(key string, def map[string]any) (map[string]any, error) {
	v, ok := p.Value(key)
	if !ok {
		return def, nil
	}
	switch obj := v.(type) {
	case map[string]any:
		return obj, nil
	case Params:
		return map[string]any(obj), nil
	default:
		return nil, invalid("%s must be an object", key)
	}
}

// Decode converts the object at key into dst through its JSON tags. Absent
// keys leave dst untouched.
func (p Params) Decode(key string, dst any) error {
	obj, err := p.Object(key, nil)
	if err != nil || obj == nil {
		return err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return invalid("%s: %v", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalid("%s: %v", key, err)
	}
	return nil
}

// truthy mirrors "is there anything here": null, false, zero numbers and
// empty strings, lists and objects are all empty.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case json.Number:
		return t.String() != "0"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
