package query

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Records returns one map per row keyed by column name.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(r.Columns))
		for i, column := range r.Columns {
			if i < len(row) {
				record[column] = row[i]
			} else {
				record[column] = nil
			}
		}
		records = append(records, record)
	}
	return records
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// PrepareSQL trims the statement, drops trailing semicolons and wraps it in an outer LIMIT when rowLimit > 0.
func PrepareSQL(sqlText string, rowLimit int) (string, error) {
	sqlText = StripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return "", fmt.Errorf("sql is required")
	}
	if rowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
	}
	return sqlText, nil
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
