// Package scalars defines the custom GraphQL scalar types the generated
// schema depends on.
package scalars

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// JSON accepts a string, object, array, number, boolean, or null and
// produces the same shape on output. Strings that parse as JSON documents
// are preserved as the parsed value.
func JSON() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "JSON",
		Description: "Arbitrary JSON value: object, array, string, number, boolean, or null.",
		Serialize:   coerceJSON,
		ParseValue:  coerceJSON,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			return parseJSONLiteral(valueAST)
		},
	})
}

func coerceJSON(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return coerceJSON(string(v))
	case string:
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return parsed
		}
		return v
	default:
		return v
	}
}

// parseJSONLiteral walks an inline document in the query text.
func parseJSONLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return coerceJSON(v.Value)
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		parsed, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil
		}
		return parsed
	case *ast.FloatValue:
		parsed, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil
		}
		return parsed
	case *ast.EnumValue:
		return v.Value
	case *ast.ListValue:
		items := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			items = append(items, parseJSONLiteral(item))
		}
		return items
	case *ast.ObjectValue:
		fields := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			fields[field.Name.Value] = parseJSONLiteral(field.Value)
		}
		return fields
	default:
		return nil
	}
}

// NonNegativeInt backs pagination arguments such as limit, offset, first,
// and last.
func NonNegativeInt() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "NonNegativeInt",
		Description: "An integer greater than or equal to zero.",
		Serialize: func(value interface{}) interface{} {
			if parsed, ok := coerceNonNegativeInt(value); ok {
				return parsed
			}
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			if parsed, ok := coerceNonNegativeInt(value); ok {
				return parsed
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			intValue, ok := valueAST.(*ast.IntValue)
			if !ok {
				return nil
			}
			parsed, err := strconv.Atoi(intValue.Value)
			if err != nil || parsed < 0 {
				return nil
			}
			return parsed
		},
	})
}

func coerceNonNegativeInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		if v < 0 {
			return 0, false
		}
		return v, true
	case int32:
		if v < 0 {
			return 0, false
		}
		return int(v), true
	case int64:
		if v < 0 || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) || v < 0 || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
