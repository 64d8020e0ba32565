// Package normalize coerces raw extracted values into the flat scalar model.
//
// Coercion is total: no input raises. A value that cannot satisfy its
// declared column type becomes null and the caller counts a warning.
package normalize

import (
	"encoding/json"
	"strings"

	"eds/internal/doctext"
	"eds/internal/fhirpath"
	"eds/internal/table"
)

// Declared column types accepted from the "_schemas" section. Anything else
// (including "") leaves the value untyped.
const (
	TypeText     = "text"
	TypeNumber   = "number"
	TypeBool     = "bool"
	TypeDatetime = "datetime"
)

// Value normalizes one raw extracted value against a declared type.
// The second result reports whether a coercion warning occurred.
//
// Order of operations: nulls stay null; a list collapses to its first
// non-null element; nested records serialize to canonical JSON text (the
// store is flat); then the declared type, if any, is enforced.
func Value(raw any, declaredType string) (table.Value, bool) {
	raw = collapseList(raw)
	if raw == nil {
		return table.Null(), false
	}

	v, ok := table.FromAny(raw)
	if !ok {
		v = stringifyStructured(raw)
	}

	if v.Kind() == table.KindText && doctext.LooksLikeMarkup(v.String()) {
		v = table.Text(doctext.Flatten(v.String()))
	}

	return coerce(v, declaredType)
}

func collapseList(raw any) any {
	list, ok := raw.([]any)
	if !ok {
		return raw
	}
	for _, el := range list {
		if el != nil {
			return el
		}
	}
	return nil
}

// stringifyStructured renders a nested map/record as canonical JSON text.
// encoding/json sorts map keys, which makes the encoding deterministic.
func stringifyStructured(raw any) table.Value {
	b, err := json.Marshal(raw)
	if err != nil {
		return table.Null()
	}
	return table.Text(string(b))
}

func coerce(v table.Value, declaredType string) (table.Value, bool) {
	switch strings.ToLower(declaredType) {
	case "", "any":
		return v, false

	case TypeText, "string":
		return v.AsText(), false

	case TypeNumber, "float", "int", "integer":
		if v.Kind() == table.KindNumber {
			return v, false
		}
		f, ok := v.Float()
		if !ok {
			return table.Null(), true
		}
		return table.Number(f), false

	case TypeBool, "boolean":
		return coerceBool(v)

	case TypeDatetime, "date", "timestamp":
		// Temporal values stay normalized ISO-8601 text; parsing is deferred
		// to query time. This is an intentional simplification.
		return v.AsText(), false

	default:
		// Unknown declared type: keep the value, flag the configuration slip.
		return v, true
	}
}

func coerceBool(v table.Value) (table.Value, bool) {
	switch v.Kind() {
	case table.KindBool:
		return v, false
	case table.KindNumber:
		f, _ := v.Float()
		return table.Bool(f != 0), false
	case table.KindText:
		switch strings.ToLower(strings.TrimSpace(v.String())) {
		case "true", "t", "yes", "y", "1":
			return table.Bool(true), false
		case "false", "f", "no", "n", "0":
			return table.Bool(false), false
		}
	}
	return table.Null(), true
}

// Identifier cleans a foreign-key-like value: reference prefixes are
// stripped, and anything that still carries query-string punctuation came
// from a malformed payload and is discarded rather than stored as a
// misleading identifier.
func Identifier(s string) string {
	s = fhirpath.StripReference(s)
	if strings.ContainsAny(s, "?=&") {
		return ""
	}
	return s
}
