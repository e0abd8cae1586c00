package query

import (
	"fmt"
	"reflect"
)

// Recorder is implemented by tabular results that can render themselves as records.
type Recorder interface {
	Records() []map[string]any
}

// Records converts an execution result into a JSON-friendly list of records.
// Tabular results yield one map per row, lists pass through as records, a single
// map becomes one record and any other value is wrapped as {"result": value}.
func Records(value any) []map[string]any {
	switch typed := value.(type) {
	case nil:
		return []map[string]any{}
	case Recorder:
		return typed.Records()
	case []map[string]any:
		if typed == nil {
			return []map[string]any{}
		}
		return typed
	case map[string]any:
		return []map[string]any{typed}
	case []any:
		return sliceRecords(typed)
	case string, []byte:
		return scalarRecords(typed)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return sliceRecords(items)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			record := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				record[iter.Key().String()] = iter.Value().Interface()
			}
			return []map[string]any{record}
		}
	}
	return scalarRecords(value)
}

func sliceRecords(items []any) []map[string]any {
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if record, ok := item.(map[string]any); ok {
			records = append(records, record)
			continue
		}
		records = append(records, map[string]any{"value": item})
	}
	return records
}

func scalarRecords(value any) []map[string]any {
	if raw, ok := value.([]byte); ok {
		value = string(raw)
	}
	return []map[string]any{{"result": fmt.Sprint(value)}}
}
