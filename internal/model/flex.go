package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// FlexFloat, FlexInt and FlexTime tolerate the upstream reporters' habit of
// sending numbers and timestamps as JSON strings. A value that cannot be
// coerced decodes to the zero value instead of failing the surrounding
// object's unmarshal — per spec.md §4.2, uncoercible values are dropped
// field-wise, the record is preserved.

// FlexFloat decodes a JSON number or a numeric JSON string into a float64.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	v, ok := coerceFloat(b)
	*f = FlexFloat(v)
	_ = ok
	return nil
}

func (f FlexFloat) Float64() float64 { return float64(f) }

// FlexInt decodes a JSON number (including ones with a fractional part, which
// are truncated) or a numeric JSON string into an int.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	v, ok := coerceFloat(b)
	if !ok {
		*f = 0
		return nil
	}
	*f = FlexInt(int(v))
	return nil
}

func (f FlexInt) Int() int { return int(f) }

// FlexTime decodes epoch-millisecond numbers, epoch-millisecond numeric
// strings, or RFC3339 strings into a time.Time. An uncoercible value decodes
// to the zero time.
type FlexTime time.Time

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*t = FlexTime(time.Time{})
		return nil
	}

	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			*t = FlexTime(time.Time{})
			return nil
		}
		if ms, err := strconv.ParseInt(str, 10, 64); err == nil {
			*t = FlexTime(time.UnixMilli(ms).UTC())
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339, str); err == nil {
			*t = FlexTime(parsed.UTC())
			return nil
		}
		*t = FlexTime(time.Time{})
		return nil
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*t = FlexTime(time.UnixMilli(ms).UTC())
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*t = FlexTime(time.UnixMilli(int64(f)).UTC())
		return nil
	}
	*t = FlexTime(time.Time{})
	return nil
}

func (t FlexTime) Time() time.Time { return time.Time(t) }

func (t FlexTime) IsZero() bool { return time.Time(t).IsZero() }

// coerceFloat extracts a float64 out of a raw JSON number or numeric string
// token. The second return value is false when no numeric value could be
// recovered.
func coerceFloat(b []byte) (float64, bool) {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return 0, false
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return 0, false
		}
		str = strings.TrimSpace(str)
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
