// Package planner composes deterministic, parameterized SQL from GraphQL
// arguments: WHERE trees, ORDER BY lists, cursor seek predicates, and the
// final SELECT statements. All values travel as bound parameters.
package planner

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/sqlutil"
)

// WhereClause is a parsed WHERE condition with the columns it touches.
type WhereClause struct {
	Condition   sq.Sqlizer
	UsedColumns []string
}

// BuildWhereClause parses a GraphQL where input into a SQL condition.
// Returns nil for an empty input.
func BuildWhereClause(table introspection.Table, whereInput map[string]interface{}) (*WhereClause, error) {
	if len(whereInput) == 0 {
		return nil, nil
	}

	used := make(map[string]struct{})
	condition, err := buildWhereCondition(table, whereInput, used)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(used))
	for col := range used {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	return &WhereClause{Condition: condition, UsedColumns: columns}, nil
}

// buildWhereCondition recursively builds the condition tree. Sibling fields
// combine with AND; the or key combines its branches with OR. Keys are
// visited in sorted order so the generated SQL is deterministic.
func buildWhereCondition(table introspection.Table, whereInput map[string]interface{}, used map[string]struct{}) (sq.Sqlizer, error) {
	conditions := []sq.Sqlizer{}
	keys := make([]string, 0, len(whereInput))
	for key := range whereInput {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := whereInput[key]
		if key == "or" {
			orArray, ok := value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("or must be an array of filters")
			}
			orConditions := []sq.Sqlizer{}
			for _, item := range orArray {
				itemMap, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("or array items must be filter objects")
				}
				cond, err := buildWhereCondition(table, itemMap, used)
				if err != nil {
					return nil, err
				}
				if cond != nil {
					orConditions = append(orConditions, cond)
				}
			}
			if len(orConditions) > 0 {
				conditions = append(conditions, sq.Or(orConditions))
			}
			continue
		}

		col, ok := table.Column(key)
		if !ok {
			return nil, fmt.Errorf("unknown column: %s", key)
		}
		used[col.Name] = struct{}{}

		filterMap, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("filter for %s must be an object", key)
		}
		colConditions, err := buildColumnFilter(*col, filterMap)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, colConditions...)
	}

	if len(conditions) == 0 {
		return nil, nil
	}
	if len(conditions) == 1 {
		return conditions[0], nil
	}
	return sq.And(conditions), nil
}

// buildColumnFilter builds the conditions for one column, checking each
// operator against the column's declared type before any SQL is emitted.
func buildColumnFilter(col introspection.Column, filterMap map[string]interface{}) ([]sq.Sqlizer, error) {
	conditions := []sq.Sqlizer{}
	quoted := sqlutil.QuoteIdentifier(col.Name)
	resolved := col.Type.Resolve()

	ops := make([]string, 0, len(filterMap))
	for op := range filterMap {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, op := range ops {
		value := filterMap[op]
		if err := checkOperatorType(col, op, resolved); err != nil {
			return nil, err
		}

		switch op {
		case "eq":
			conditions = append(conditions, sq.Eq{quoted: value})
		case "neq":
			conditions = append(conditions, sq.NotEq{quoted: value})
		case "lt":
			conditions = append(conditions, sq.Lt{quoted: value})
		case "lte":
			conditions = append(conditions, sq.LtOrEq{quoted: value})
		case "gt":
			conditions = append(conditions, sq.Gt{quoted: value})
		case "gte":
			conditions = append(conditions, sq.GtOrEq{quoted: value})

		case "contains":
			cond, err := buildContains(quoted, resolved, value)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, cond)

		case "startsWith":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("startsWith requires a string")
			}
			conditions = append(conditions, sq.Like{quoted: sqlutil.EscapeLikePattern(s) + "%"})
		case "endsWith":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("endsWith requires a string")
			}
			conditions = append(conditions, sq.Like{quoted: "%" + sqlutil.EscapeLikePattern(s)})

		case "like":
			conditions = append(conditions, sq.Like{quoted: value})
		case "ilike":
			conditions = append(conditions, sq.ILike{quoted: value})

		case "in":
			arr, ok := value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("in requires an array")
			}
			conditions = append(conditions, sq.Eq{quoted: arr})
		case "notIn":
			arr, ok := value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("notIn requires an array")
			}
			// A NULL in a NOT IN list makes the whole predicate unknown
			// under three-valued logic, so NULLs are dropped before binding.
			filtered := make([]interface{}, 0, len(arr))
			for _, item := range arr {
				if item != nil {
					filtered = append(filtered, item)
				}
			}
			conditions = append(conditions, sq.NotEq{quoted: filtered})

		case "isNull":
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("isNull requires a boolean")
			}
			if b {
				conditions = append(conditions, sq.Eq{quoted: nil})
			} else {
				conditions = append(conditions, sq.NotEq{quoted: nil})
			}
		case "isNotNull":
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("isNotNull requires a boolean")
			}
			if b {
				conditions = append(conditions, sq.NotEq{quoted: nil})
			} else {
				conditions = append(conditions, sq.Eq{quoted: nil})
			}

		case "hasKey":
			// jsonb_exists is the function form of the ? operator, which
			// would otherwise collide with the placeholder rewriter.
			conditions = append(conditions, sq.Expr(fmt.Sprintf("jsonb_exists(%s, ?)", jsonbExpr(quoted, resolved)), value))
		case "path":
			pathLiteral, err := textArrayLiteral(value)
			if err != nil {
				return nil, fmt.Errorf("path requires a list of keys: %w", err)
			}
			conditions = append(conditions, sq.Expr(fmt.Sprintf("%s #> ?::text[] IS NOT NULL", quoted), pathLiteral))

		case "hasAny":
			arrayLiteral, err := boundArrayLiteral(value)
			if err != nil {
				return nil, fmt.Errorf("hasAny requires an array: %w", err)
			}
			cast := arrayCast(resolved)
			conditions = append(conditions, sq.Expr(fmt.Sprintf("%s && ?%s", quoted, cast), arrayLiteral))
		case "length":
			conditions = append(conditions, sq.Expr(fmt.Sprintf("cardinality(%s) = ?", quoted), value))

		default:
			return nil, fmt.Errorf("unknown filter operator: %s", op)
		}
	}

	return conditions, nil
}

func buildContains(quoted string, resolved introspection.TypeDescriptor, value interface{}) (sq.Sqlizer, error) {
	switch {
	case resolved.Variant == introspection.VariantArray:
		return sq.Expr(fmt.Sprintf("? = ANY(%s)", quoted), value), nil
	case resolved.IsJSON():
		return sq.Expr(fmt.Sprintf("%s @> ?::jsonb", jsonbExpr(quoted, resolved)), jsonBinding(value)), nil
	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("contains requires a string")
		}
		return sq.Like{quoted: "%" + sqlutil.EscapeLikePattern(s) + "%"}, nil
	}
}

// jsonbExpr casts a plain json column to jsonb. jsonb_exists and @> only
// exist for jsonb, so the json variant needs the cast.
func jsonbExpr(quoted string, resolved introspection.TypeDescriptor) string {
	if resolved.Variant == introspection.VariantScalar && resolved.Scalar == introspection.ScalarJSON {
		return quoted + "::jsonb"
	}
	return quoted
}

// checkOperatorType rejects operator/type pairs before SQL generation.
func checkOperatorType(col introspection.Column, op string, resolved introspection.TypeDescriptor) error {
	mismatch := func() error {
		return fmt.Errorf("operator %s is not valid for column %s", op, col.Name)
	}

	isArray := resolved.Variant == introspection.VariantArray
	isJSON := resolved.IsJSON()
	isEnum := resolved.Variant == introspection.VariantEnum
	isString := col.Type.IsTextual()
	comparable := col.Type.IsNumeric() || col.Type.IsTemporal() || isString ||
		resolved.Scalar == introspection.ScalarUUID

	switch op {
	case "eq", "neq", "in", "notIn":
		if isArray || isJSON {
			return mismatch()
		}
	case "lt", "lte", "gt", "gte":
		if !comparable {
			return mismatch()
		}
	case "contains":
		if !isString && !isArray && !isJSON {
			return mismatch()
		}
	case "startsWith", "endsWith", "like", "ilike":
		if !isString {
			return mismatch()
		}
	case "hasKey", "path":
		if !isJSON {
			return mismatch()
		}
	case "hasAny", "length":
		if !isArray {
			return mismatch()
		}
	case "isNull", "isNotNull":
		// Valid for every type.
	default:
		if isEnum {
			return mismatch()
		}
	}
	return nil
}

// textArrayLiteral renders a key path as a text[] binding.
func textArrayLiteral(value interface{}) (string, error) {
	arr, ok := value.([]interface{})
	if !ok {
		return "", fmt.Errorf("got %T", value)
	}
	return boundArrayLiteral(arr)
}

// boundArrayLiteral renders a GraphQL list as an array literal parameter.
func boundArrayLiteral(value interface{}) (string, error) {
	arr, ok := value.([]interface{})
	if !ok {
		return "", fmt.Errorf("got %T", value)
	}
	elems := make([]interface{}, len(arr))
	copy(elems, arr)
	return encodeBoundArray(elems), nil
}

// arrayCast returns the cast needed so the bound array literal compares
// against the column's element type.
func arrayCast(resolved introspection.TypeDescriptor) string {
	if resolved.Variant != introspection.VariantArray || resolved.Elem == nil {
		return ""
	}
	switch resolved.Elem.Resolve().Scalar {
	case introspection.ScalarInt32, introspection.ScalarSmallInt:
		return "::int[]"
	case introspection.ScalarInt64:
		return "::bigint[]"
	case introspection.ScalarFloat32, introspection.ScalarFloat64, introspection.ScalarNumeric:
		return "::float8[]"
	case introspection.ScalarBool:
		return "::bool[]"
	case introspection.ScalarUUID:
		return "::uuid[]"
	default:
		return "::text[]"
	}
}
