package training

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowbit/vanna/internal/query"
)

// MarkdownTable renders a result as a pipe table with a leading row index column.
// Numeric columns are right aligned, everything else left aligned.
func MarkdownTable(result query.Result) string {
	headers := append([]string{""}, result.Columns...)
	numeric := make([]bool, len(headers))
	numeric[0] = true
	for col := range result.Columns {
		numeric[col+1] = len(result.Rows) > 0
		for _, row := range result.Rows {
			if col < len(row) && row[col] != nil && !isNumber(row[col]) {
				numeric[col+1] = false
				break
			}
		}
	}

	cells := make([][]string, 0, len(result.Rows))
	for i, row := range result.Rows {
		line := make([]string, len(headers))
		line[0] = strconv.Itoa(i)
		for col := range result.Columns {
			if col < len(row) {
				line[col+1] = formatCell(row[col])
			}
		}
		cells = append(cells, line)
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = max(len(header), 3)
	}
	for _, line := range cells {
		for i, cell := range line {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	writeRow(&b, headers, widths, numeric)
	b.WriteString("\n")
	separators := make([]string, len(headers))
	for i := range headers {
		if numeric[i] {
			separators[i] = strings.Repeat("-", widths[i]+1) + ":"
		} else {
			separators[i] = ":" + strings.Repeat("-", widths[i]+1)
		}
	}
	b.WriteString("|" + strings.Join(separators, "|") + "|")
	for _, line := range cells {
		b.WriteString("\n")
		writeRow(&b, line, widths, numeric)
	}
	return b.String()
}

func writeRow(b *strings.Builder, values []string, widths []int, numeric []bool) {
	b.WriteString("|")
	for i, value := range values {
		if numeric[i] {
			fmt.Fprintf(b, " %*s |", widths[i], value)
		} else {
			fmt.Fprintf(b, " %-*s |", widths[i], value)
		}
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case time.Time:
		return typed.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case string:
		return strings.ReplaceAll(typed, "|", `\|`)
	default:
		return fmt.Sprint(typed)
	}
}
