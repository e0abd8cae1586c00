package query

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// ScanRows drains rows into column names and normalized values.
func ScanRows(rows *sql.Rows) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}
	decimal := make([]bool, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range types {
			decimal[i] = isDecimalType(columnType.DatabaseTypeName())
		}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values, decimal))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}

func normalizeValues(values []any, decimal []bool) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case string:
			normalized[i] = typed
			if i < len(decimal) && decimal[i] {
				if parsed, err := strconv.ParseFloat(typed, 64); err == nil {
					normalized[i] = parsed
				}
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func isDecimalType(name string) bool {
	name = strings.ToUpper(name)
	return strings.HasPrefix(name, "NUMERIC") || strings.HasPrefix(name, "DECIMAL")
}
