// Package scrape pulls telemetry fields out of the ONU web UI pages.
//
// Each page is described by a fixed catalog of Fields. A Field pairs a
// regular expression whose first capture group holds the raw value with
// a Transform that decodes it and a Default used whenever the pattern
// does not match or the raw text cannot be decoded. Extraction never
// fails: a malformed page simply yields the catalog defaults.
package scrape

import (
	"regexp"
	"strconv"
	"strings"
)

// Transform decodes the raw capture of a field. ok=false means the raw
// text was unusable and the field's default applies.
type Transform func(raw string) (v Value, ok bool)

// Field is one entry of a page catalog.
type Field struct {
	Key       string
	Pattern   *regexp.Regexp
	Transform Transform
	Default   Value
}

// Verbatim publishes the captured text unchanged.
func Verbatim(raw string) (Value, bool) {
	return Text(raw), true
}

// Scaled divides the raw integer by divisor and rounds to places decimals.
func Scaled(divisor float64, places int) Transform {
	return func(raw string) (Value, bool) {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Value{}, false
		}
		return Float(round(f/divisor, places)), true
	}
}

// Integer parses the raw text as a base-10 integer.
func Integer(raw string) (Value, bool) {
	i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return Value{}, false
	}
	return Int(i), true
}

// Lookup maps raw codes through table. Codes missing from the table
// decode to unknown.
func Lookup(table map[string]string, unknown string) Transform {
	return func(raw string) (Value, bool) {
		if s, ok := table[strings.TrimSpace(raw)]; ok {
			return Text(s), true
		}
		return Text(unknown), true
	}
}
