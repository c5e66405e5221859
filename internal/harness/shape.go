package harness

import (
	"fmt"

	"connkit/internal/jsvm"
)

var (
	queryItemFields = []string{"id", "name", "relativePath", "type"}
	detailFields    = []string{"id", "name", "type"}
	downloadFields  = []string{"id", "bytes"}
)

// checkShape returns one message per required field missing from a method
// result. Kinds without a contract are not checked.
func checkShape(kind jsvm.MethodKind, value any) []string {
	switch kind {
	case jsvm.KindQuery:
		return checkQuery(value)
	case jsvm.KindDetail:
		return requireFields("result", value, detailFields)
	case jsvm.KindDownload:
		return requireFields("result", value, downloadFields)
	}
	return nil
}

func checkQuery(value any) []string {
	obj, ok := value.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("result is %s, want object with data and pageSize", typeName(value))}
	}

	var missing []string
	data := obj["data"]
	hasData := data != nil
	if !hasData {
		missing = append(missing, `result missing field "data"`)
	}
	if obj["pageSize"] == nil {
		missing = append(missing, `result missing field "pageSize"`)
	}
	if !hasData {
		return missing
	}

	items, ok := data.([]any)
	if !ok {
		return append(missing, fmt.Sprintf(`result field "data" is %s, want list`, typeName(data)))
	}
	for i, item := range items {
		missing = append(missing, requireFields(fmt.Sprintf("result.data[%d]", i), item, queryItemFields)...)
	}
	return missing
}

func requireFields(path string, value any, fields []string) []string {
	obj, ok := value.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("%s is %s, want object", path, typeName(value))}
	}

	var missing []string
	for _, f := range fields {
		if v, ok := obj[f]; !ok || v == nil {
			missing = append(missing, fmt.Sprintf("%s missing field %q", path, f))
		}
	}
	return missing
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
