package duckdb

import (
	"fmt"
	"strings"
	"time"
)

// InterpolateQuery substitutes args into query for logging. The result is
// valid DuckDB SQL; it is never executed.
func InterpolateQuery(query string, args []any) string {
	for _, arg := range args {
		query = strings.Replace(query, "?", sqlLiteral(arg), 1)
	}
	return strings.Join(strings.Fields(query), " ")
}

func sqlLiteral(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%v", v)
	case time.Time:
		// Round(0) strips the monotonic reading.
		return "'" + v.Round(0).UTC().Format(time.RFC3339Nano) + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
	}
}
