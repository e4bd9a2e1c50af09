package repositories

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// row wraps a normalised result row from datasource.Store.Query. Adapters
// disagree on booleans (SQLite integers, PostgreSQL bools) and on timestamp
// text, so accessors accept every representation a store can produce.
type row map[string]any

// timeLayouts covers RFC3339 from normalised times plus the text SQLite
// writes for datetime('now') defaults and bound time.Time values.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r row) asInt64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func (r row) asInt(col string) int {
	return int(r.asInt64(col))
}

func (r row) asIntPtr(col string) *int {
	if r[col] == nil {
		return nil
	}
	n := r.asInt(col)
	return &n
}

func (r row) asFloatPtr(col string) *float64 {
	var f float64
	switch v := r[col].(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func (r row) asString(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (r row) asStringPtr(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.asString(col)
	return &s
}

func (r row) asBool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (r row) asTime(col string) time.Time {
	s, ok := r[col].(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (r row) asTimePtr(col string) *time.Time {
	if r[col] == nil {
		return nil
	}
	t := r.asTime(col)
	if t.IsZero() {
		return nil
	}
	return &t
}

// decodeJSON unmarshals a JSON text column into dst. Empty columns leave dst untouched.
func (r row) decodeJSON(col string, dst any) error {
	s := r.asString(col)
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("decode %s: %w", col, err)
	}
	return nil
}

// encodeJSON renders v for a JSON text column; nil stays NULL.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
