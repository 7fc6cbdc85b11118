package metrics

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind discriminates the variants of a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindMap
)

// Field is one entry of a mapping Value.
type Field struct {
	Key   string
	Value Value
}

// Value is a node of a metrics report tree. Leaves hold a string, an integer
// or a float; inner nodes hold an ordered list of fields.
type Value struct {
	kind   Kind
	str    string
	i      int64
	f      float64
	fields []Field
}

// String returns a string leaf.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer leaf.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float leaf.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Map returns a mapping node. The fields slice is copied.
func Map(fields ...Field) Value {
	return Value{kind: KindMap, fields: append([]Field(nil), fields...)}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// Fields returns the entries of a mapping node, or nil for leaves.
func (v Value) Fields() []Field { return v.fields }

// Get returns the child stored under key.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Lookup follows a path of keys from v.
func (v Value) Lookup(path ...string) (Value, bool) {
	cur := v
	for _, k := range path {
		next, ok := cur.Get(k)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Float64 returns the numeric value of an int or float leaf.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// Str returns the contents of a string leaf.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Normalize returns a copy of v where every leaf that can be read as a
// number is a float. Strings that do not parse are kept unchanged; v itself
// is never modified.
func Normalize(v Value) Value {
	switch v.kind {
	case KindMap:
		out := make([]Field, len(v.fields))
		for i, f := range v.fields {
			out[i] = Field{Key: f.Key, Value: Normalize(f.Value)}
		}
		return Value{kind: KindMap, fields: out}
	case KindInt:
		return Float(float64(v.i))
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			// NaN and Inf have no JSON form, keep the source text.
			return v
		}
		return Float(f)
	}
	return v
}

// MarshalJSON encodes the tree with mapping keys in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return eris.Wrap(err, "metrics: encode string")
		}
		buf.Write(b)
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return eris.Errorf("metrics: cannot encode %v as JSON", v.f)
		}
		buf.WriteString(FormatFloat(v.f))
	case KindMap:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteString(", ")
			}
			k, err := json.Marshal(f.Key)
			if err != nil {
				return eris.Wrap(err, "metrics: encode key")
			}
			buf.Write(k)
			buf.WriteString(": ")
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON decodes a JSON object into a tree, keeping key order.
// Numbers decode as floats.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, eris.Wrap(err, "metrics: decode token")
	}
	switch t := tok.(type) {
	case json.Delim:
		if t != '{' {
			return Value{}, eris.Errorf("metrics: unexpected delimiter %q", t)
		}
		var fields []Field
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return Value{}, eris.Wrap(err, "metrics: decode key")
			}
			key, ok := keyTok.(string)
			if !ok {
				return Value{}, eris.Errorf("metrics: non-string key %v", keyTok)
			}
			child, err := decodeValue(dec)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Key: key, Value: child})
		}
		if _, err := dec.Token(); err != nil {
			return Value{}, eris.Wrap(err, "metrics: decode object end")
		}
		return Value{kind: KindMap, fields: fields}, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, eris.Wrapf(err, "metrics: decode number %s", t)
		}
		return Float(f), nil
	case string:
		return String(t), nil
	case bool:
		return String(strconv.FormatBool(t)), nil
	case nil:
		return String(""), nil
	}
	return Value{}, eris.Errorf("metrics: unsupported token %v", tok)
}

// FormatFloat renders f as the shortest decimal that round-trips:
// integral values keep a trailing ".0" and very small or very large
// magnitudes use exponent notation.
func FormatFloat(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
