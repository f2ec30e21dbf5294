package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface representing the typed values a request payload may carry.
// Only Null, String, Int, Float, Bool, Array, and Object implement this.
type Value interface {
	payloadValue() // Sealed - only these types implement it
}

// Null represents a JSON null value.
type Null struct{}

func (Null) payloadValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) payloadValue() {}

// Int represents an integer value. Store identifiers are always Int.
type Int int64

func (Int) payloadValue() {}

// Float represents a floating-point parameter (redshift, wavenumber, tolerance...).
// NaN and infinities are rejected on marshal.
type Float float64

func (Float) payloadValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) payloadValue() {}

// Array represents an array of Value elements.
type Array []Value

func (Array) payloadValue() {}

// Object represents a map of string keys to Value elements.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) payloadValue() {}

// Pair represents a key-value pair for typed Object construction.
type Pair struct {
	Key   string
	Value Value
}

// P is a shorthand for Pair.
// Example: New(P("z", Float(2.5)), P("source", Bool(true)))
func P(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// New creates an Object from typed key-value pairs.
func New(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Clone returns a shallow copy of obj. Nested arrays and objects are shared.
func (obj Object) Clone() Object {
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// Float returns the numeric value stored under key.
// Int values are widened so callers may pass either.
func (obj Object) Float(key string) (float64, bool) {
	switch v := obj[key].(type) {
	case Float:
		return float64(v), true
	case Int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns the integer value stored under key.
// A Float with no fractional part is accepted; YAML and JSON decoders
// do not always preserve the distinction.
func (obj Object) Int(key string) (int64, bool) {
	switch v := obj[key].(type) {
	case Int:
		return int64(v), true
	case Float:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), true
		}
	}
	return 0, false
}

// String returns the string value stored under key.
func (obj Object) String(key string) (string, bool) {
	v, ok := obj[key].(String)
	return string(v), ok
}

// Bool returns the boolean value stored under key.
func (obj Object) Bool(key string) (bool, bool) {
	v, ok := obj[key].(Bool)
	return bool(v), ok
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 which produces a different order.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(Object, len(raw))
	for k, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (arr *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(Array, len(raw))
	for i, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// unmarshalValue decodes a JSON value into the appropriate Value type.
// Numbers containing a fraction or exponent decode as Float, all others as Int.
func unmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		var arr Array
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return numberValue(string(n))
	}
}

// numberValue parses a JSON number literal.
func numberValue(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for comparisons.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalValue marshals a Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return formatFloat(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown payload value type: %T", v)
	}
}

// formatFloat renders f so that it decodes back as a Float.
func formatFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// FromAny converts a decoded Go value (from encoding/json, yaml.v3 or a
// literal map) into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return Int(val), nil
	case float64:
		return Float(val), nil
	case float32:
		return Float(val), nil
	case json.Number:
		return numberValue(string(val))
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromMap converts a decoded map into an Object.
func ObjectFromMap(m map[string]any) (Object, error) {
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}
