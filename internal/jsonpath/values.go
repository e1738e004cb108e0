package jsonpath

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Normalize приводит произвольное значение к JSON-дереву
// (map[string]any, []any, float64, string, bool, nil).
func Normalize(value any) (any, error) {
	switch value.(type) {
	case nil, string, bool, float64:
		return value, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-compatible: %w", err)
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("value is not JSON-compatible: %w", err)
	}
	return out, nil
}

// Clone возвращает глубокую копию JSON-дерева
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Clone(child)
		}
		return out
	default:
		return value
	}
}

// Equal сравнивает два JSON-дерева
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// IsScalar сообщает, что значение не является объектом или массивом
func IsScalar(value any) bool {
	switch value.(type) {
	case map[string]any, []any:
		return false
	}
	return true
}
