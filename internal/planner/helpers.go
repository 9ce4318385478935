package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// jsonBinding renders a filter value as a JSON document for a ::jsonb cast.
// JSON-shaped strings bind as-is; everything else is marshaled.
func jsonBinding(value interface{}) string {
	if s, ok := value.(string); ok {
		var probe interface{}
		if err := json.Unmarshal([]byte(s), &probe); err == nil {
			return s
		}
	}
	marshaled, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%v", value))
	}
	return string(marshaled)
}

// encodeBoundArray renders list elements as a PostgreSQL array literal so
// the whole list binds as one parameter.
func encodeBoundArray(elems []interface{}) string {
	parts := make([]string, 0, len(elems))
	for _, elem := range elems {
		if elem == nil {
			parts = append(parts, "NULL")
			continue
		}
		s := fmt.Sprintf("%v", elem)
		if s == "" || strings.ContainsAny(s, `{},"\ `) {
			escaped := strings.ReplaceAll(s, `\`, `\\`)
			escaped = strings.ReplaceAll(escaped, `"`, `\"`)
			s = `"` + escaped + `"`
		}
		parts = append(parts, s)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
