// Package table holds the in-memory columnar model shared by the whole
// pipeline: a tagged scalar Value, an ordered-column Table, and the on-disk
// codec used for both batch and store directories.
//
// Values are deliberately restricted to flat scalars (null, text, number,
// bool). Anything nested must be flattened before it reaches a Table; the
// codec enforces this by construction.
package table

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates the scalar variants a cell can hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one cell: a tagged variant of Null | Text | Number | Bool.
//
// It is a small comparable struct on purpose: values are used directly as map
// keys for joins and groupings, and comparability gives identity semantics
// without reflection or interface boxing.
type Value struct {
	kind Kind
	text string
	num  float64
	b    bool
}

// Null returns the null value. The zero Value is also null.
func Null() Value { return Value{} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// String renders the canonical text form of the value. Null renders as the
// empty string; numbers use the shortest round-trippable representation.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Float returns the numeric form, parsing text when it looks numeric.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		f, err := strconv.ParseFloat(v.text, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsText converts the value to its text variant, preserving null.
func (v Value) AsText() Value {
	if v.kind == KindNull || v.kind == KindText {
		return v
	}
	return Text(v.String())
}

// Any returns the native Go scalar (nil, string, float64 or bool), the form
// database drivers expect as a bound parameter.
func (v Value) Any() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// FromAny adapts a decoded JSON scalar. Non-scalar inputs (maps, slices)
// return ok=false; callers decide how to flatten them.
func FromAny(raw any) (Value, bool) {
	switch t := raw.(type) {
	case nil:
		return Null(), true
	case string:
		return Text(t), true
	case bool:
		return Bool(t), true
	case float64:
		return Number(t), true
	case int:
		return Number(float64(t)), true
	case int64:
		return Number(float64(t)), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Text(t.String()), true
		}
		return Number(f), true
	default:
		return Null(), false
	}
}

// MarshalJSON emits the native JSON scalar for the cell.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("table: marshal unknown kind %v", v.kind)
	}
}

// UnmarshalJSON accepts the native scalar forms written by MarshalJSON.
func (v *Value) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("table: empty value")
	}
	switch b[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case 't', 'f':
		var bv bool
		if err := json.Unmarshal(b, &bv); err != nil {
			return err
		}
		*v = Bool(bv)
		return nil
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("table: parse number %q: %w", b, err)
		}
		*v = Number(f)
		return nil
	}
}
