package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is a single record keyed by column. Values may come from a SQL driver
// (int64, time.Time, string) or from a decoded JSON notification (float64,
// RFC 3339 strings, []any), so the accessors accept both.
type Row map[string]any

var timeLayouts = []string{ //nolint:gochecknoglobals // fixed parse table
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the column as a string; NULL is "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the column as an int; NULL and unparsable values are 0.
func (r Row) Int(col string) int {
	switch v := r[col].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	case json.Number:
		f, _ := v.Float64()
		return int(math.Round(f))
	case string:
		return atoi(v)
	case []byte:
		return atoi(string(v))
	}
	return 0
}

func atoi(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(math.Round(f))
}

// IntPtr is Int for nullable columns.
func (r Row) IntPtr(col string) *int {
	if r[col] == nil {
		return nil
	}
	v := r.Int(col)
	return &v
}

// Bool returns the column as a bool; NULL is false.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b
	}
	return false
}

// Time returns the column as a time; NULL and unparsable values are zero.
func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// TimePtr is Time for nullable columns.
func (r Row) TimePtr(col string) *time.Time {
	t := r.Time(col)
	if t.IsZero() {
		return nil
	}
	return &t
}

// Strings returns an array column.
func (r Row) Strings(col string) []string {
	switch v := r[col].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fmt.Sprint(s))
		}
		return out
	}
	return nil
}

// Map returns a JSON object column.
func (r Row) Map(col string) map[string]any {
	switch v := r[col].(type) {
	case map[string]any:
		return v
	case string:
		return decodeObject([]byte(v))
	case []byte:
		return decodeObject(v)
	}
	return nil
}

func decodeObject(b []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// MatchesFilters evaluates filters against r in memory.
func (r Row) MatchesFilters(filters []Filter) bool {
	for _, f := range filters {
		if !r.matches(f) {
			return false
		}
	}
	return true
}

func (r Row) matches(f Filter) bool {
	v, ok := r[f.Column]
	if f.Op == OpIsNull {
		return !ok || v == nil
	}
	if !ok || v == nil {
		return false
	}
	c := Compare(v, f.Value)
	switch f.Op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpIsNull:
		return false
	}
	return false
}

// Compare orders two column values. Numbers compare numerically, times
// chronologically, booleans false<true, everything else as strings.
func Compare(a, b any) int {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case bb:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
