package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"
)

// maxExactInt is the largest integer a float64 holds without rounding.
const maxExactInt = 1 << 53

// canonical walks v and returns it rebuilt from nil, bool, string, float64,
// []any and map[string]any only.
func canonical(path string, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case string:
		return checkString(path, x)
	case float64:
		return checkFloat(path, x)
	case float32:
		return checkFloat(path, float64(x))
	case int:
		return checkInt(path, int64(x))
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return checkInt(path, x)
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint:
		return checkUint(path, uint64(x))
	case uint64:
		return checkUint(path, x)
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return nil, &pathError{path: path, err: fmt.Errorf("%w: number %q", ErrUnsupportedValue, x)}
		}
		return checkFloat(path, f)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			c, err := canonical(index(path, i), item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		return canonicalMap(path, x)
	case Metadata:
		return canonicalMap(path, x)
	case []byte:
		return nil, &pathError{path: path, err: fmt.Errorf("%w: raw bytes", ErrUnsupportedValue)}
	}
	return canonicalReflect(path, v)
}

func canonicalMap(path string, m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, item := range m {
		if _, err := checkKey(path, k); err != nil {
			return nil, err
		}
		c, err := canonical(field(path, k), item)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}

// canonicalReflect handles typed slices and string-keyed maps such as
// []string or map[string]int.
func canonicalReflect(path string, v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return checkString(path, rv.String())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			c, err := canonical(index(path, i), rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &pathError{path: path, err: fmt.Errorf("%w: map key type %s", ErrUnsupportedValue, rv.Type().Key())}
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := checkKey(path, iter.Key().String())
			if err != nil {
				return nil, err
			}
			c, err := canonical(field(path, k), iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	}
	return nil, &pathError{path: path, err: fmt.Errorf("%w: %T", ErrUnsupportedValue, v)}
}

// checkString rejects text that JSON cannot carry unchanged.
func checkString(path, s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", &pathError{path: path, err: fmt.Errorf("%w: invalid UTF-8 in string", ErrUnsupportedValue)}
	}
	return s, nil
}

func checkKey(path, k string) (string, error) {
	if !utf8.ValidString(k) {
		return "", &pathError{path: path, err: fmt.Errorf("%w: invalid UTF-8 in map key %q", ErrUnsupportedValue, k)}
	}
	return k, nil
}

func checkFloat(path string, f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &pathError{path: path, err: fmt.Errorf("%w: non-finite number", ErrUnsupportedValue)}
	}
	return f, nil
}

func checkInt(path string, n int64) (any, error) {
	if n > maxExactInt || n < -maxExactInt {
		return nil, &pathError{path: path, err: fmt.Errorf("%w: integer %d exceeds 2^53", ErrUnsupportedValue, n)}
	}
	return float64(n), nil
}

func checkUint(path string, n uint64) (any, error) {
	if n > maxExactInt {
		return nil, &pathError{path: path, err: fmt.Errorf("%w: integer %d exceeds 2^53", ErrUnsupportedValue, n)}
	}
	return float64(n), nil
}

func field(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
