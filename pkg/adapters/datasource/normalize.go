package datasource

import (
	"time"
)

// NormalizeValue converts a driver scalar into a JSON-friendly value so that
// result rows look the same whichever adapter produced them: byte slices
// become strings, times become RFC3339 strings in UTC, and every integer or
// float width collapses to int64 or float64. Other values pass through.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

// NormalizeRow applies NormalizeValue to columns/values read from one row.
func NormalizeRow(columns []string, values []any) map[string]any {
	row := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(values) {
			row[col] = NormalizeValue(values[i])
		} else {
			row[col] = nil
		}
	}
	return row
}
