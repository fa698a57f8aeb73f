package scrape

import (
	"math"
	"strconv"
)

type valueKind uint8

const (
	kindText valueKind = iota
	kindFloat
	kindInt
)

// Value is one decoded field value. It renders as text the way the
// state topics expect: floats always carry a fractional part ("0.0",
// "12.35"), integers never do ("45").
type Value struct {
	kind valueKind
	text string
	num  float64
}

func Text(s string) Value { return Value{kind: kindText, text: s} }
func Float(f float64) Value { return Value{kind: kindFloat, num: f} }
func Int(i int64) Value { return Value{kind: kindInt, num: float64(i)} }

// Number returns the numeric value, or 0 for text values.
func (v Value) Number() float64 {
	if v.kind == kindText {
		return 0
	}
	return v.num
}

func (v Value) String() string {
	switch v.kind {
	case kindFloat:
		s := strconv.FormatFloat(v.num, 'f', -1, 64)
		if v.num == math.Trunc(v.num) && !math.IsInf(v.num, 0) {
			s += ".0"
		}
		return s
	case kindInt:
		return strconv.FormatInt(int64(v.num), 10)
	default:
		return v.text
	}
}

// round rounds the exact binary value of f, halves to even.
func round(f float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', places, 64), 64)
	if err != nil {
		return f
	}
	return r
}
