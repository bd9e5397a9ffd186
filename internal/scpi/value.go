package scpi

import "strconv"

// Value is a typed parameter value: either text (enum/string parameters) or
// a number. The zero Value is "unknown" and renders as the empty string.
type Value struct {
	text    string
	num     float64
	numeric bool
	known   bool
}

// Text wraps a string value.
func Text(s string) Value { return Value{text: s, known: true} }

// Number wraps a numeric value.
func Number(f float64) Value { return Value{num: f, numeric: true, known: true} }

// Known reports whether the value has ever been set.
func (v Value) Known() bool { return v.known }

// Numeric reports whether the value carries a float.
func (v Value) Numeric() bool { return v.numeric }

// Float returns the numeric value; ok is false for text values.
func (v Value) Float() (f float64, ok bool) {
	if !v.numeric {
		return 0, false
	}
	return v.num, true
}

// String renders the value the way it goes on the wire.
func (v Value) String() string {
	if !v.known {
		return ""
	}
	if v.numeric {
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return v.text
}

// Equal compares two values after rendering, which matches the encode/decode
// round-trip equality the read-back check needs (1.50 == 1.5).
func (v Value) Equal(o Value) bool {
	if v.numeric && o.numeric {
		return v.num == o.num
	}
	return v.String() == o.String()
}
