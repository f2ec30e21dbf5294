package payload

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for a payload value.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Floats always carry a fraction or exponent so they never read back as Int
//
// Two payloads are considered the same document iff their canonical forms
// are byte-identical.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("nil payload value")
	case Null:
		buf.WriteString("null")
	case String:
		return writeCanonicalString(buf, string(val))
	case Int:
		fmt.Fprintf(buf, "%d", int64(val))
	case Float:
		b, err := formatFloat(float64(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalString writes an NFC-normalized JSON string without HTML escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(NormalizeString(s)); err != nil {
		return fmt.Errorf("marshal string: %w", err)
	}
	// Encoder adds a trailing newline
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// NormalizeString returns the NFC form of s.
// String key columns are normalized before matching and storage so that
// visually identical labels deduplicate.
func NormalizeString(s string) string {
	return norm.NFC.String(s)
}

// Equal reports whether a and b have identical canonical forms.
func Equal(a, b Value) bool {
	ab, err := MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
